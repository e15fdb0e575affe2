// Package template renders personalization templates in step configs:
// email subjects and bodies, webhook payloads, social copy.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/protocol"
)

// RenderForEnrollment renders input against the contact and the
// enrollment's context bag. Templates see .contact, .context, .journey
// and .enrollment.
func RenderForEnrollment(input string, journeyModel *models.Journey, enrollmentModel *models.Enrollment, contact *protocol.ContactSummary) (any, error) {
	data := map[string]any{
		"context": enrollmentModel.Context,
		"enrollment": map[string]any{
			"id":          enrollmentModel.ID,
			"contact_id":  enrollmentModel.ContactID,
			"enrolled_at": enrollmentModel.EnrolledAt.Format(time.RFC3339),
		},
	}

	if journeyModel != nil {
		data["journey"] = map[string]any{
			"id":   journeyModel.ID,
			"name": journeyModel.Name,
		}
	}

	if contact != nil {
		data["contact"] = map[string]any{
			"id":         contact.ID,
			"email":      contact.Email,
			"first_name": contact.FirstName,
			"last_name":  contact.LastName,
			"lifecycle":  contact.Lifecycle,
			"tags":       contact.Tags,
			"attributes": contact.Attributes,
		}
	}

	return Render(input, data)
}

// RenderString is RenderForEnrollment flattened to a string result.
func RenderString(input string, journeyModel *models.Journey, enrollmentModel *models.Enrollment, contact *protocol.ContactSummary) (string, error) {
	rendered, err := RenderForEnrollment(input, journeyModel, enrollmentModel, contact)
	if err != nil {
		return "", err
	}

	return fmt.Sprint(rendered), nil
}

// Render executes input as a text/template against data. Results that look
// like JSON, numbers or booleans come back typed so webhook payloads keep
// their shape.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("step").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"default": func(fallback string, value any) any {
				if value == nil || value == "" {
					return fallback
				}

				return value
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderMap renders every string value of the map, recursively.
func RenderMap(input map[string]any, data any) (map[string]any, error) {
	if input == nil {
		return nil, nil
	}

	result := make(map[string]any, len(input))

	for key, value := range input {
		switch typed := value.(type) {
		case string:
			rendered, err := Render(typed, data)
			if err != nil {
				return nil, err
			}

			result[key] = rendered
		case map[string]any:
			rendered, err := RenderMap(typed, data)
			if err != nil {
				return nil, err
			}

			result[key] = rendered
		default:
			result[key] = value
		}
	}

	return result, nil
}
