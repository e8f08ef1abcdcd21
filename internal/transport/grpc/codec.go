package grpc

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"schedula/internal/domain"
)

// Request and response bodies are google.protobuf.Struct with snake_case
// keys matching the JSON file layout.

func appointmentFields(a domain.Appointment) map[string]any {
	m := map[string]any{
		"id":               a.ID,
		"title":            a.Title,
		"date":             a.Date.String(),
		"time":             a.Time.String(),
		"duration_minutes": a.DurationMinutes,
		"client_name":      a.ClientName,
		"description":      a.Description,
		"status":           string(a.Status),
		"created_at":       a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.UpdatedAt != nil {
		m["updated_at"] = a.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return m
}

func appointmentList(appts []domain.Appointment) []any {
	out := make([]any, 0, len(appts))
	for _, a := range appts {
		out = append(out, appointmentFields(a))
	}
	return out
}

func slotList(slots []domain.TimeOfDay) []any {
	out := make([]any, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out
}

func fieldValue(req *structpb.Struct, key string) (*structpb.Value, bool) {
	if req == nil {
		return nil, false
	}
	v, ok := req.GetFields()[key]
	if !ok {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func stringField(req *structpb.Struct, key string) (string, error) {
	v, ok := fieldValue(req, key)
	if !ok {
		return "", nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return strings.TrimSpace(s.StringValue), nil
}

// intField reports whether the key was present.
func intField(req *structpb.Struct, key string) (int64, bool, error) {
	v, ok := fieldValue(req, key)
	if !ok {
		return 0, false, nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber {
		return 0, true, fmt.Errorf("%s must be a number", key)
	}
	f := n.NumberValue
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > 1<<53 {
		return 0, true, fmt.Errorf("%s must be an integer", key)
	}
	return int64(f), true, nil
}

func boolField(req *structpb.Struct, key string) (bool, error) {
	v, ok := fieldValue(req, key)
	if !ok {
		return false, nil
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return b.BoolValue, nil
}

// optionalIntField is nil when the key is absent.
func optionalIntField(req *structpb.Struct, key string) (*int, error) {
	v, ok, err := intField(req, key)
	if err != nil || !ok {
		return nil, err
	}
	n := int(v)
	return &n, nil
}

func idField(req *structpb.Struct) (int64, error) {
	id, ok, err := intField(req, "id")
	if err != nil {
		return 0, err
	}
	if !ok || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}
