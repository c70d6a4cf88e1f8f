package k8s

import (
	"context"
	"fmt"
	"log"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Default location of the active model reference
const (
	DefaultConfigMapName  = "email-classifier-config"
	DefaultActiveModelKey = "activeModel"
)

// Client handles Kubernetes operations
type Client struct {
	clientset     kubernetes.Interface
	namespace     string
	configMapName string
	key           string
}

// NewClient creates a client reading the active model from namespace/configMapName
func NewClient(clientset kubernetes.Interface, namespace, configMapName string) *Client {
	if configMapName == "" {
		configMapName = DefaultConfigMapName
	}
	return &Client{
		clientset:     clientset,
		namespace:     namespace,
		configMapName: configMapName,
		key:           DefaultActiveModelKey,
	}
}

// Clientset exposes the underlying clientset
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}

// SourceName identifies the ConfigMap as an active model source
func (c *Client) SourceName() string {
	return "configmap"
}

// ActiveModel returns the model named in the ConfigMap, or "" when the
// ConfigMap or key is absent
func (c *Client) ActiveModel(ctx context.Context) (string, error) {
	cm, err := c.clientset.CoreV1().ConfigMaps(c.namespace).Get(ctx, c.configMapName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get configmap %s/%s: %w", c.namespace, c.configMapName, err)
	}
	return strings.TrimSpace(cm.Data[c.key]), nil
}

// SetActiveModel records name in the ConfigMap, creating it if needed
func (c *Client) SetActiveModel(ctx context.Context, name string) error {
	cms := c.clientset.CoreV1().ConfigMaps(c.namespace)
	cm, err := cms.Get(ctx, c.configMapName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		cm = &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      c.configMapName,
				Namespace: c.namespace,
				Labels:    map[string]string{"app": "email-classifier"},
			},
			Data: map[string]string{c.key: name},
		}
		if _, err := cms.Create(ctx, cm, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("failed to create configmap: %w", err)
		}
		log.Printf("Created configmap %s/%s with active model %s", c.namespace, c.configMapName, name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get configmap %s/%s: %w", c.namespace, c.configMapName, err)
	}

	if cm.Data == nil {
		cm.Data = map[string]string{}
	}
	cm.Data[c.key] = name
	if _, err := cms.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update configmap: %w", err)
	}
	log.Printf("Active model in %s/%s set to %s", c.namespace, c.configMapName, name)
	return nil
}
