package k8s

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestActiveModelMissingConfigMap(t *testing.T) {
	c := NewClient(fake.NewSimpleClientset(), "ml", "")
	name, err := c.ActiveModel(context.Background())
	if err != nil || name != "" {
		t.Errorf("ActiveModel = %q, %v; want empty, nil", name, err)
	}
}

func TestActiveModelFromConfigMap(t *testing.T) {
	cs := fake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: DefaultConfigMapName, Namespace: "ml"},
		Data:       map[string]string{DefaultActiveModelKey: " email-v3\n"},
	})
	c := NewClient(cs, "ml", "")
	name, err := c.ActiveModel(context.Background())
	if err != nil || name != "email-v3" {
		t.Errorf("ActiveModel = %q, %v", name, err)
	}

	other := NewClient(cs, "other", "")
	if name, _ := other.ActiveModel(context.Background()); name != "" {
		t.Errorf("ActiveModel in another namespace = %q", name)
	}
}

func TestSetActiveModel(t *testing.T) {
	c := NewClient(fake.NewSimpleClientset(), "ml", "custom-cm")

	if err := c.SetActiveModel(context.Background(), "email-v1"); err != nil {
		t.Fatalf("SetActiveModel create: %v", err)
	}
	if name, _ := c.ActiveModel(context.Background()); name != "email-v1" {
		t.Errorf("after create ActiveModel = %q", name)
	}

	if err := c.SetActiveModel(context.Background(), "email-v2"); err != nil {
		t.Fatalf("SetActiveModel update: %v", err)
	}
	if name, _ := c.ActiveModel(context.Background()); name != "email-v2" {
		t.Errorf("after update ActiveModel = %q", name)
	}

	cm, err := c.Clientset().CoreV1().ConfigMaps("ml").Get(context.Background(), "custom-cm", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cm.Labels["app"] != "email-classifier" {
		t.Errorf("labels = %v", cm.Labels)
	}
}
