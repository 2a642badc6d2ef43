package services

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"familyportal-backend/shared/database/models/notification"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	TemplateNotification = "notification"
	TemplateDigest       = "digest"
)

// NotificationEmail is the data behind a single event email
type NotificationEmail struct {
	Name            string
	Type            notification.NotificationType
	TypeLabel       string
	Title           string
	Body            string
	Link            string
	PreferencesLink string
}

// DigestGroup holds one type's items inside a digest email
type DigestGroup struct {
	Type  notification.NotificationType
	Label string
	Items []notification.Notification
}

// DigestEmail is the data behind the combined daily email
type DigestEmail struct {
	Name            string
	Since           time.Time
	Items           []notification.Notification
	Groups          []DigestGroup
	PreferencesLink string
}

// TemplateService handles rendering of email templates
type TemplateService struct {
	portalURL     string
	templateCache map[string]*template.Template
	templateMutex sync.RWMutex
}

// NewTemplateService creates a new template service. portalURL is the
// frontend base used to absolutize deep links.
func NewTemplateService(portalURL string) *TemplateService {
	return &TemplateService{
		portalURL:     strings.TrimRight(portalURL, "/"),
		templateCache: make(map[string]*template.Template),
	}
}

// RenderTemplate renders an embedded template with provided data
func (ts *TemplateService) RenderTemplate(templateID string, data any) (string, error) {
	tmpl, err := ts.load(templateID)
	if err != nil {
		return "", err
	}

	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateID, err)
	}
	return rendered.String(), nil
}

func (ts *TemplateService) load(templateID string) (*template.Template, error) {
	ts.templateMutex.RLock()
	tmpl, exists := ts.templateCache[templateID]
	ts.templateMutex.RUnlock()
	if exists {
		return tmpl, nil
	}

	tmpl, err := template.ParseFS(templateFS, "templates/"+templateID+".html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", templateID, err)
	}

	ts.templateMutex.Lock()
	ts.templateCache[templateID] = tmpl
	ts.templateMutex.Unlock()
	return tmpl, nil
}

// NotificationMessage builds the subject and HTML body for one event
func (ts *TemplateService) NotificationMessage(name string, kind notification.NotificationType, payload notification.Payload) (string, string, error) {
	body, err := ts.RenderTemplate(TemplateNotification, NotificationEmail{
		Name:            name,
		Type:            kind,
		TypeLabel:       kind.Label(),
		Title:           payload.Title,
		Body:            payload.Body,
		Link:            ts.Link(payload.URL),
		PreferencesLink: ts.Link("/settings/notifications"),
	})
	if err != nil {
		return "", "", err
	}
	return payload.Title, body, nil
}

// DigestMessage builds the subject and HTML body for a recipient's digest.
// Items keep their order; groups follow the type enumeration order.
func (ts *TemplateService) DigestMessage(name string, since time.Time, items []notification.Notification) (string, string, error) {
	byType := make(map[notification.NotificationType][]notification.Notification)
	for _, item := range items {
		item.URL = ts.Link(item.URL)
		byType[item.Type] = append(byType[item.Type], item)
	}

	var groups []DigestGroup
	for _, kind := range notification.AllTypes() {
		if len(byType[kind]) == 0 {
			continue
		}
		groups = append(groups, DigestGroup{Type: kind, Label: kind.Label(), Items: byType[kind]})
	}

	body, err := ts.RenderTemplate(TemplateDigest, DigestEmail{
		Name:            name,
		Since:           since,
		Items:           items,
		Groups:          groups,
		PreferencesLink: ts.Link("/settings/notifications"),
	})
	if err != nil {
		return "", "", err
	}

	subject := fmt.Sprintf("Your family digest: %d new updates", len(items))
	if len(items) == 1 {
		subject = "Your family digest: 1 new update"
	}
	return subject, body, nil
}

// Link turns a portal-relative path into an absolute URL
func (ts *TemplateService) Link(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return ts.portalURL + path
}
