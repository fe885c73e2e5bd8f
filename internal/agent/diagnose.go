package agent

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/haasonsaas/agentdesk/internal/agent/providers"
)

var (
	badModelSignatures = []string{
		"model_not_found", "model not found", "does not exist", "unknown model",
		"invalid model", "no such model", "model is not supported", "not a valid model",
	}
	badBaseURLSignatures = []string{
		"no such host", "connection refused", "404 page not found", "unsupported protocol scheme",
		"invalid url", "server misbehaving", "tls: ", "x509:", "<html",
	}
	badKeySignatures = []string{
		"invalid_api_key", "invalid api key", "incorrect api key", "invalid x-api-key",
		"api key not valid", "api key expired", "authentication_error", "unauthorized",
		"permission_denied", "permission denied",
	}
	unsupportedParamSignatures = []string{
		"unsupported parameter", "unsupported_parameter", "unrecognized request argument",
		"unknown parameter", "unsupported value", "unsupported_value",
	}
)

// Diagnose turns a provider failure into a message the user can act on.
// Misconfiguration signatures yield a specific hint; anything else yields a
// generic retry-later message.
func Diagnose(provider, model string, err error) string {
	if provider == "" {
		provider = "your AI provider"
	}
	text := ""
	status := 0
	reason := providers.FailoverUnknown
	if err != nil {
		text = strings.ToLower(err.Error())
		if providerErr, ok := providers.GetProviderError(err); ok {
			text += " " + strings.ToLower(providerErr.Detail())
			status = providerErr.Status
			reason = providerErr.Reason
		}
	}

	switch {
	case containsAny(text, badModelSignatures):
		return modelHint(provider, model)
	case containsAny(text, badBaseURLSignatures) || status == http.StatusNotFound:
		return fmt.Sprintf("I couldn't reach %s at the configured base URL. Check the base URL in your provider settings, or clear it to use the default endpoint.", provider)
	case status == http.StatusUnauthorized || status == http.StatusForbidden || containsAny(text, badKeySignatures):
		return keyHint(provider)
	case containsAny(text, unsupportedParamSignatures):
		return fmt.Sprintf("%s rejected a request parameter for model %q. Try a different model, or check that the base URL points at a compatible API.", provider, model)
	case reason == providers.FailoverModelUnavailable:
		return modelHint(provider, model)
	case reason == providers.FailoverAuth:
		return keyHint(provider)
	}
	return fmt.Sprintf("I ran into a problem reaching %s. Please try again in a moment.", provider)
}

func modelHint(provider, model string) string {
	return fmt.Sprintf("The model %q isn't available from %s. Check the model name in your agent settings.", model, provider)
}

func keyHint(provider string) string {
	return fmt.Sprintf("%s rejected the API key. Check that the key saved in your provider settings is valid and has not expired.", provider)
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
