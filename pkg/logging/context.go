package logging

import (
	"context"
)

type contextKey string

const (
	DocumentIDKey  contextKey = "document_id"
	SubjectIDKey   contextKey = "subject_id"
	RuleIDKey      contextKey = "rule_id"
	ServiceNameKey contextKey = "service_name"
)

func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, DocumentIDKey, documentID)
}

func WithSubjectID(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, SubjectIDKey, subjectID)
}

func WithRuleID(ctx context.Context, ruleID string) context.Context {
	return context.WithValue(ctx, RuleIDKey, ruleID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetDocumentID(ctx context.Context) string {
	return stringValue(ctx, DocumentIDKey)
}

func GetSubjectID(ctx context.Context) string {
	return stringValue(ctx, SubjectIDKey)
}

func GetRuleID(ctx context.Context) string {
	return stringValue(ctx, RuleIDKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, ServiceNameKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetLogFields flattens the context-carried identifiers into zap sugared
// key/value pairs.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if id := GetDocumentID(ctx); id != "" {
		fields = append(fields, string(DocumentIDKey), id)
	}
	if id := GetSubjectID(ctx); id != "" {
		fields = append(fields, string(SubjectIDKey), id)
	}
	if id := GetRuleID(ctx); id != "" {
		fields = append(fields, string(RuleIDKey), id)
	}
	if name := GetServiceName(ctx); name != "" {
		fields = append(fields, string(ServiceNameKey), name)
	}

	return fields
}
