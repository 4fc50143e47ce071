/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-03

This file renders the embedded resource templates. It:

- Executes a text/template for each resource kind
- Converts the rendered YAML into unstructured objects for the dynamic client
- Splits multi-document YAML such as init bundles into objects
*/

package manifests

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io"
	"text/template"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

//go:embed templates/*.yaml
var templateFS embed.FS

var templates = template.Must(template.New("").Option("missingkey=error").ParseFS(templateFS, "templates/*.yaml"))

// OperatorGroup parameters. An empty TargetNamespaces selects all namespaces.
type OperatorGroup struct {
	Name             string
	Namespace        string
	TargetNamespaces []string
}

// Subscription parameters
type Subscription struct {
	Name            string
	Namespace       string
	Package         string
	Channel         string
	Source          string
	SourceNamespace string
	Approval        string
	StartingCSV     string
}

// Central parameters
type Central struct {
	Name      string
	Namespace string
	TLSSecret string
}

// SecuredCluster parameters
type SecuredCluster struct {
	Name            string
	Namespace       string
	ClusterName     string
	CentralEndpoint string
}

// ServiceMonitor parameters
type ServiceMonitor struct {
	Name        string
	Namespace   string
	Interval    string
	TokenSecret string
	TokenKey    string
}

// RenderOperatorGroup renders an OperatorGroup
func RenderOperatorGroup(p OperatorGroup) (*unstructured.Unstructured, error) {
	return render("operatorgroup.yaml", p)
}

// RenderSubscription renders an OLM Subscription
func RenderSubscription(p Subscription) (*unstructured.Unstructured, error) {
	if p.Approval == "" {
		p.Approval = "Automatic"
	}
	return render("subscription.yaml", p)
}

// RenderCentral renders a Central with its route exposed
func RenderCentral(p Central) (*unstructured.Unstructured, error) {
	return render("central.yaml", p)
}

// RenderSecuredCluster renders a SecuredCluster
func RenderSecuredCluster(p SecuredCluster) (*unstructured.Unstructured, error) {
	return render("securedcluster.yaml", p)
}

// RenderServiceMonitor renders the ServiceMonitor scraping Central
func RenderServiceMonitor(p ServiceMonitor) (*unstructured.Unstructured, error) {
	if p.Interval == "" {
		p.Interval = "30s"
	}
	return render("servicemonitor.yaml", p)
}

func render(name string, data interface{}) (*unstructured.Unstructured, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return Decode(buf.Bytes())
}

// Decode converts a single YAML document into an unstructured object
func Decode(doc []byte) (*unstructured.Unstructured, error) {
	js, err := yaml.YAMLToJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON(js); err != nil {
		return nil, fmt.Errorf("invalid object: %w", err)
	}
	return obj, nil
}

// DecodeAll splits multi-document YAML and decodes every non-empty document
func DecodeAll(data []byte) ([]*unstructured.Unstructured, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))

	var objs []*unstructured.Unstructured
	for {
		doc, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read YAML document: %w", err)
		}
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}

		js, err := yaml.YAMLToJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		if string(js) == "null" {
			continue
		}

		obj := &unstructured.Unstructured{}
		if err := obj.UnmarshalJSON(js); err != nil {
			return nil, fmt.Errorf("invalid object: %w", err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}
