package chartsource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"oidworker/pkg/errors"
)

// target is a DevTools page target as listed by /json/new
type target struct {
	ID                   string `json:"id"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// devtools talks to a browser's remote debugging endpoint
type devtools struct {
	baseURL string
	http    *http.Client
}

func (d *devtools) newTarget(ctx context.Context) (*target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, d.baseURL+"/json/new?"+url.QueryEscape("about:blank"), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build new target request")
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "open browser target")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("open browser target: status %d", resp.StatusCode)
	}

	var t target
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, errors.Wrap(err, "decode browser target")
	}
	if t.WebSocketDebuggerURL == "" {
		return nil, errors.New("browser target has no debugger url")
	}
	return &t, nil
}

func (d *devtools) closeTarget(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/json/close/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// page is one protocol session bound to a target. Calls are sequential.
type page struct {
	conn   *websocket.Conn
	nextID atomic.Int64
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcMessage struct {
	ID     int64           `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

func dialPage(ctx context.Context, wsURL string) (*page, error) {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "connect to browser target")
	}
	return &page{conn: conn}, nil
}

func (p *page) close() error {
	_ = p.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return p.conn.Close()
}

// call sends one command and waits for its reply, discarding events in between
func (p *page) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	id := p.nextID.Add(1)

	stop := context.AfterFunc(ctx, func() {
		_ = p.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = p.conn.SetWriteDeadline(deadline)
	}
	msg := map[string]interface{}{"id": id, "method": method}
	if params != nil {
		msg["params"] = params
	}
	if err := p.conn.WriteJSON(msg); err != nil {
		return errors.Wrapf(err, "send %s", method)
	}

	for {
		var reply rpcMessage
		if err := p.conn.ReadJSON(&reply); err != nil {
			if ctx.Err() != nil {
				return errors.Wrapf(ctx.Err(), "%s", method)
			}
			return errors.Wrapf(err, "read %s reply", method)
		}
		if reply.ID != id {
			continue
		}
		if reply.Error != nil {
			return errors.Newf("%s: %s (code %d)", method, reply.Error.Message, reply.Error.Code)
		}
		if result != nil && len(reply.Result) > 0 {
			if err := json.Unmarshal(reply.Result, result); err != nil {
				return errors.Wrapf(err, "decode %s reply", method)
			}
		}
		return nil
	}
}

type evaluateResult struct {
	Result struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text      string `json:"text"`
		Exception *struct {
			Description string `json:"description"`
		} `json:"exception"`
	} `json:"exceptionDetails"`
}

// evaluate runs expression in the page and decodes its JSON-serializable value into out
func (p *page) evaluate(ctx context.Context, expression string, out interface{}) error {
	var res evaluateResult
	err := p.call(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	}, &res)
	if err != nil {
		return err
	}
	if ex := res.ExceptionDetails; ex != nil {
		text := ex.Text
		if ex.Exception != nil && ex.Exception.Description != "" {
			text = ex.Exception.Description
		}
		return errors.Newf("page script failed: %s", strings.TrimSpace(text))
	}
	if out == nil || len(res.Result.Value) == 0 {
		return nil
	}
	return json.Unmarshal(res.Result.Value, out)
}

func (p *page) navigate(ctx context.Context, rawURL string) error {
	var res struct {
		ErrorText string `json:"errorText"`
	}
	if err := p.call(ctx, "Page.navigate", map[string]string{"url": rawURL}, &res); err != nil {
		return err
	}
	if res.ErrorText != "" {
		return errors.Newf("navigate: %s", res.ErrorText)
	}
	return nil
}

// waitFor polls until expression evaluates to true
func (p *page) waitFor(ctx context.Context, expression string, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		var ok bool
		if err := p.evaluate(ctx, "Boolean("+expression+")", &ok); err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "wait for %s", expression)
		case <-ticker.C:
		}
	}
}
