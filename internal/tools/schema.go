package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

const secretCodeProperty = `"secretCode": {"type": "string", "minLength": 6, "description": "Identity the token is stored under. Defaults to the configured default identity."}`

const clientLoginProperty = `"clientLogin": {"type": "string", "minLength": 1, "description": "Advertiser login sent as Client-Login. Defaults to the login stored with the token."}`

func objectSchema(required []string, properties ...string) json.RawMessage {
	req := "[]"
	if len(required) > 0 {
		req = `["` + strings.Join(required, `","`) + `"]`
	}
	return json.RawMessage(fmt.Sprintf(`{"type": "object", "properties": {%s}, "required": %s}`, strings.Join(properties, ", "), req))
}

func listSchema(defaultFields []string) json.RawMessage {
	fields, _ := json.Marshal(defaultFields)
	return objectSchema(nil,
		secretCodeProperty,
		clientLoginProperty,
		`"selectionCriteria": {"type": "object", "default": {}}`,
		fmt.Sprintf(`"fieldNames": {"type": "array", "items": {"type": "string"}, "default": %s}`, fields),
		fmt.Sprintf(`"page": {"type": "object", "properties": {"Limit": {"type": "integer", "minimum": 1, "maximum": %d, "default": %d}, "Offset": {"type": "integer", "minimum": 0, "default": 0}}}`, MaxPageLimit, DefaultPageLimit),
	)
}

var (
	startOAuthSchema = objectSchema(nil,
		secretCodeProperty,
		`"scope": {"type": "string", "default": "direct:api"}`,
	)

	attachTokenSchema = objectSchema([]string{"oauthToken"},
		secretCodeProperty,
		`"oauthToken": {"type": "string", "minLength": 10}`,
		`"login": {"type": "string", "description": "Advertiser login stored with the token"}`,
	)

	setActiveTokenSchema = objectSchema(nil, secretCodeProperty)

	listCredentialsSchema = objectSchema(nil)

	reportSchema = objectSchema([]string{"reportDefinition"},
		secretCodeProperty,
		clientLoginProperty,
		`"reportDefinition": {"type": "object", "description": "ReportDefinition of the Reports service"}`,
		`"returnMoneyInMicros": {"type": "boolean", "default": false}`,
		fmt.Sprintf(`"maxRetries": {"type": "integer", "minimum": 1, "maximum": %d, "default": %d}`, MaxReportRetries, DefaultReportRetries),
		`"processingMode": {"type": "string", "enum": ["auto", "online", "offline"]}`,
		`"skipReportHeader": {"type": "boolean"}`,
		`"skipColumnHeader": {"type": "boolean"}`,
		`"skipReportSummary": {"type": "boolean"}`,
	)

	callServiceSchema = objectSchema([]string{"service", "method", "params"},
		secretCodeProperty,
		clientLoginProperty,
		`"service": {"type": "string", "minLength": 1, "description": "API v5 service, for example campaigns"}`,
		`"method": {"type": "string", "minLength": 1, "description": "add, get, update, delete, suspend, resume or any other method of the service"}`,
		`"params": {"type": "object"}`,
	)
)
