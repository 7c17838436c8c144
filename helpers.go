package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// writeJSON codifica v como resposta JSON com o status dado.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// pickStr extrai string de mapa JSON com múltiplas chaves candidatas.
func pickStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case string:
				if strings.TrimSpace(t) != "" {
					return t
				}
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64)
			case json.Number:
				return t.String()
			}
		}
	}
	return ""
}

// onlyDigits remove tudo que não for dígito (normalização de telefones).
func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// digitsFromJID reduz um JID do WhatsApp ("18095551234@s.whatsapp.net")
// ao número puro em dígitos.
func digitsFromJID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	return onlyDigits(jid)
}

// nilIfEmpty converte "" em NULL para colunas opcionais.
func nilIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
