package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

// userIDFromRequest 按优先级解析用户 ID：
// userId 查询参数 > X-User-ID 请求头 > JSON body 的 userId 字段
func userIDFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get("userId"); id != "" {
		return id
	}
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}

	var body struct {
		UserID string `json:"userId"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err == nil {
		return body.UserID
	}
	return ""
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	if r.Body == nil {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
