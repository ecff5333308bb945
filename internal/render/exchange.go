package render

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gyokusei/nga-cli/internal/forum"
)

// maxBodyPreview bounds how much of a response body ExchangeResponse prints.
const maxBodyPreview = 64 * 1024

// ExchangeRequest describes the request half of an exchange.
func ExchangeRequest(ex forum.Exchange) string {
	if ex.Request == nil {
		return "no request recorded\n"
	}
	req := ex.Request
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", req.Method, req.URL)
	if !req.SentAt.IsZero() {
		fmt.Fprintf(&sb, "sent: %s\n", req.SentAt.Local().Format("2006-01-02 15:04:05"))
	}
	if len(req.Params) > 0 {
		sb.WriteString("params:\n")
		keys := make([]string, 0, len(req.Params))
		for k := range req.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range req.Params[k] {
				fmt.Fprintf(&sb, "  %s = %s\n", k, v)
			}
		}
	}
	writeHeader(&sb, req.Header)
	if ex.Err != "" && ex.Response == nil {
		fmt.Fprintf(&sb, "error: %s\n", ex.Err)
	}
	return sb.String()
}

// ExchangeResponse describes the response half of an exchange. Bodies
// longer than 64 KiB are cut.
func ExchangeResponse(ex forum.Exchange) string {
	if ex.Response == nil {
		if ex.Err != "" {
			return "no response: " + ex.Err + "\n"
		}
		return "no response recorded\n"
	}
	resp := ex.Response
	var sb strings.Builder
	fmt.Fprintf(&sb, "status: %d %s\n", resp.Status, http.StatusText(resp.Status))
	if !resp.ReceivedAt.IsZero() {
		fmt.Fprintf(&sb, "received: %s\n", resp.ReceivedAt.Local().Format("2006-01-02 15:04:05"))
	}
	writeHeader(&sb, resp.Header)
	if ex.Err != "" {
		fmt.Fprintf(&sb, "error: %s\n", ex.Err)
	}
	body := resp.Body
	if len(body) > maxBodyPreview {
		body = body[:maxBodyPreview] + fmt.Sprintf("\n... (%d bytes more)", len(resp.Body)-maxBodyPreview)
	}
	sb.WriteString("\n")
	sb.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeHeader(sb *strings.Builder, h http.Header) {
	if len(h) == 0 {
		return
	}
	sb.WriteString("headers:\n")
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, "  %s: %s\n", k, strings.Join(h[k], ", "))
	}
}
