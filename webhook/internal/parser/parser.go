// Package parser decodes raw webhook bodies into models.WebhookEnvelope.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

var (
	errEmptyBody = errors.New("request body is empty")
	errNotObject = errors.New("must be a JSON object")
	errMissing   = errors.New("is required")
)

// Parse decodes body. It fails with KindMalformedPayload when body is not a
// JSON object and with KindSchemaViolation when event.type or
// event.createdAt is absent or mistyped, or when any nested field has the
// wrong JSON type. Nested optional objects are otherwise left to the
// normalizer.
func Parse(body []byte) (*models.WebhookEnvelope, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, models.NewError(models.KindMalformedPayload, "", errEmptyBody)
	}
	if !json.Valid(body) {
		return nil, models.NewError(models.KindMalformedPayload, "", errors.New("body is not valid JSON"))
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return nil, models.NewError(models.KindMalformedPayload, "", errors.New("top-level value must be a JSON object"))
	}

	if err := checkRequired(top); err != nil {
		return nil, err
	}

	var env models.WebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, schemaError(err)
	}
	return &env, nil
}

func checkRequired(top map[string]json.RawMessage) error {
	rawEvent, ok := top["event"]
	if !ok || isNull(rawEvent) {
		return models.NewError(models.KindSchemaViolation, "event", errMissing)
	}

	var event map[string]json.RawMessage
	if err := json.Unmarshal(rawEvent, &event); err != nil {
		return models.NewError(models.KindSchemaViolation, "event", errNotObject)
	}

	rawType, ok := event["type"]
	if !ok || isNull(rawType) {
		return models.NewError(models.KindSchemaViolation, "event.type", errMissing)
	}
	var eventType string
	if err := json.Unmarshal(rawType, &eventType); err != nil {
		return models.NewError(models.KindSchemaViolation, "event.type", errors.New("must be a string"))
	}
	if strings.TrimSpace(eventType) == "" {
		return models.NewError(models.KindSchemaViolation, "event.type", errors.New("must not be empty"))
	}

	rawCreated, ok := event["createdAt"]
	if !ok || isNull(rawCreated) {
		return models.NewError(models.KindSchemaViolation, "event.createdAt", errMissing)
	}
	var createdAt string
	if err := json.Unmarshal(rawCreated, &createdAt); err != nil {
		return models.NewError(models.KindSchemaViolation, "event.createdAt", errors.New("must be a string"))
	}
	if _, err := models.ParseTimestamp(createdAt); err != nil {
		return models.NewError(models.KindSchemaViolation, "event.createdAt", err)
	}
	return nil
}

// schemaError converts a decoding failure on the typed envelope into a
// schema violation naming the offending field where encoding/json reports it.
func schemaError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field != "" {
			field = "event." + strings.TrimPrefix(field, "event.")
		}
		return models.NewError(models.KindSchemaViolation, field,
			fmt.Errorf("expected %s, got JSON %s", typeErr.Type, typeErr.Value))
	}
	return models.NewError(models.KindSchemaViolation, "", err)
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
