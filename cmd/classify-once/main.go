package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/loiht2/ml-platform-email-classifier/backend/classifier"
	"github.com/loiht2/ml-platform-email-classifier/backend/storage"
)

// predictionReport is printed as YAML
type predictionReport struct {
	Model      storage.ArtifactPaths `yaml:"model"`
	ModelType  string                `yaml:"modelType"`
	Classes    []string              `yaml:"classes"`
	Title      string                `yaml:"title"`
	Label      string                `yaml:"label"`
	LabelID    int                   `yaml:"labelId"`
	Confidence float64               `yaml:"confidence"`
}

func main() {
	dir := flag.String("dir", "models", "Directory holding saved models")
	name := flag.String("name", "", "Saved model name")
	title := flag.String("title", "", "Email subject")
	content := flag.String("content", "", "Email body")
	flag.Parse()

	if *name == "" || *title == "" || *content == "" {
		fmt.Fprintln(os.Stderr, "usage: classify-once -name <model> -title <subject> -content <body> [-dir models]")
		os.Exit(2)
	}
	if err := storage.ValidateModelName(*name); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	paths := storage.PathsFor(*dir, *name)
	svc := classifier.New()
	if err := svc.LoadFrom(paths, "cli"); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading model %s: %v\n", *name, err)
		os.Exit(1)
	}

	pred, err := svc.Predict(*title, *content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error classifying: %v\n", err)
		os.Exit(1)
	}

	info := svc.Info()
	out, err := yaml.Marshal(predictionReport{
		Model:      paths,
		ModelType:  info.ModelType,
		Classes:    info.Classes,
		Title:      *title,
		Label:      pred.Label,
		LabelID:    pred.LabelID,
		Confidence: pred.Confidence,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling to YAML: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(string(out))
}
