package endpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/ariebrainware/kinesio-turnos/middleware"
	"github.com/gin-gonic/gin"
)

// requestSpec describes one request against a router. registerPath and handler
// are only used by doRequestWithHandler.
type requestSpec struct {
	method       string
	registerPath string
	requestPath  string
	handler      gin.HandlerFunc
	body         interface{}
	token        string
	query        url.Values
	headers      map[string]string
}

func (rs requestSpec) target() string {
	if len(rs.query) == 0 {
		return rs.requestPath
	}
	return rs.requestPath + "?" + rs.query.Encode()
}

func (rs requestSpec) reader() (io.Reader, bool, error) {
	switch v := rs.body.(type) {
	case nil:
		return http.NoBody, false, nil
	case string:
		return bytes.NewBufferString(v), true, nil
	case []byte:
		return bytes.NewReader(v), true, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false, fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(b), true, nil
	}
}

// performRequest serves rs on h and decodes the JSON envelope when there is one.
func performRequest(h http.Handler, rs requestSpec) (*httptest.ResponseRecorder, map[string]interface{}, error) {
	body, isJSON, err := rs.reader()
	if err != nil {
		return nil, nil, err
	}

	req := httptest.NewRequest(rs.method, rs.target(), body)
	if isJSON {
		req.Header.Set("Content-Type", "application/json")
	}
	if rs.token != "" {
		req.Header.Set(middleware.SessionTokenHeader, rs.token)
	}
	for key, value := range rs.headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Body.Len() == 0 {
		return w, nil, nil
	}
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		return w, nil, fmt.Errorf("decode %s %s response: %w", rs.method, rs.requestPath, err)
	}
	return w, response, nil
}

// doRequestWithHandler mounts a single handler on r and then performs rs against it.
func doRequestWithHandler(r *gin.Engine, rs requestSpec) (*httptest.ResponseRecorder, map[string]interface{}, error) {
	r.Handle(rs.method, rs.registerPath, rs.handler)
	return performRequest(r, rs)
}
