package logger

import (
	"encoding/json"
	"fmt"
	"strings"
)

type MaskingType string

const (
	MaskingTypeFull    MaskingType = "full"    // "***"
	MaskingTypePartial MaskingType = "partial" // "a****z"
	MaskingTypeEmail   MaskingType = "email"   // "a***@example.com"
	MaskingTypeBearer  MaskingType = "bearer"  // "Bearer ***"
)

type MaskingRule struct {
	Field   string // dot path, "*" matches every key: "body.password", "headers.*"
	Type    MaskingType
	IsArray bool // mask each element when the field holds an array
}

// CredentialMasking hides the values this service must never write to a log.
var CredentialMasking = []MaskingRule{
	{Field: "body.password", Type: MaskingTypeFull},
	{Field: "body.confirmPassword", Type: MaskingTypeFull},
	{Field: "body._csrf", Type: MaskingTypeFull},
	{Field: "body.emailAddress", Type: MaskingTypeEmail},
	{Field: "body.username", Type: MaskingTypePartial},
	{Field: "headers.Authorization", Type: MaskingTypeBearer},
	{Field: "headers.Cookie", Type: MaskingTypeFull},
}

// MaskData applies masking rules to a JSON-shaped copy of data.
func MaskData(data any, rules []MaskingRule) any {
	if len(rules) == 0 {
		return data
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return data
	}

	var dataMap map[string]any
	if err := json.Unmarshal(jsonBytes, &dataMap); err != nil {
		return data
	}

	for _, rule := range rules {
		applyMaskingRecursive(dataMap, strings.Split(rule.Field, "."), rule.Type, rule.IsArray)
	}
	return dataMap
}

func applyMaskingRecursive(data any, pathParts []string, maskType MaskingType, isArray bool) {
	if len(pathParts) == 0 {
		return
	}

	currentPart := pathParts[0]
	remainingParts := pathParts[1:]

	switch v := data.(type) {
	case map[string]any:
		if currentPart == "*" {
			for key := range v {
				if len(remainingParts) == 0 {
					v[key] = maskValue(v[key], maskType)
				} else {
					applyMaskingRecursive(v[key], remainingParts, maskType, isArray)
				}
			}
			return
		}

		val, exists := v[currentPart]
		if !exists {
			return
		}
		arr, isArr := val.([]any)
		switch {
		case len(remainingParts) == 0 && isArr && isArray:
			for i := range arr {
				arr[i] = maskValue(arr[i], maskType)
			}
		case len(remainingParts) == 0:
			v[currentPart] = maskValue(val, maskType)
		case isArr && isArray:
			for i := range arr {
				applyMaskingRecursive(arr[i], remainingParts, maskType, isArray)
			}
		default:
			applyMaskingRecursive(val, remainingParts, maskType, isArray)
		}

	case []any:
		for i := range v {
			applyMaskingRecursive(v[i], pathParts, maskType, isArray)
		}
	}
}

func maskValue(value any, maskType MaskingType) any {
	if value == nil {
		return nil
	}

	strValue, ok := value.(string)
	if !ok {
		strValue = fmt.Sprint(value)
	}
	if strValue == "" {
		return value
	}

	switch maskType {
	case MaskingTypePartial:
		return maskPartial(strValue)
	case MaskingTypeEmail:
		return maskEmail(strValue)
	case MaskingTypeBearer:
		return maskBearer(strValue)
	default:
		return "***"
	}
}

func maskPartial(s string) string {
	length := len(s)
	if length <= 3 {
		return "***"
	}
	if length <= 6 {
		return string(s[0]) + "***"
	}
	return string(s[0]) + strings.Repeat("*", length-2) + string(s[length-1])
}

func maskEmail(email string) string {
	username, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if len(username) <= 1 {
		return "*@" + domain
	}

	maskLength := len(username) - 1
	if maskLength < 3 {
		maskLength = 3
	}
	return string(username[0]) + strings.Repeat("*", maskLength) + "@" + domain
}

func maskBearer(header string) string {
	scheme, _, ok := strings.Cut(header, " ")
	if !ok {
		return "***"
	}
	return scheme + " ***"
}
