package janus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/romashorodok/screenshare-broker/pkg/variables"
	"go.uber.org/fx"
)

var (
	ErrSessionUnavailable = errors.New("janus: unable to establish session")
	ErrProtocol           = errors.New("janus: protocol error")
)

const videoroomPlugin = "janus.plugin.videoroom"

// VideoRoom plugin error codes.
const (
	errCodeNoSuchRoom   = 426
	errCodeRoomExists   = 427
	errCodeUnauthorized = 433
)

// Room defaults sent with every create request.
const (
	defaultPublishers = 6
	defaultBitrate    = 128_000
	defaultFirFreq    = 10
	defaultAudioCodec = "opus"
	defaultVideoCodec = "vp8"
)

type request struct {
	Janus       string `json:"janus"`
	Transaction string `json:"transaction"`
	Plugin      string `json:"plugin,omitempty"`
	APISecret   string `json:"apisecret,omitempty"`
	Body        any    `json:"body,omitempty"`
}

type responseData struct {
	ID int64 `json:"id"`
}

type responseError struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type response struct {
	Janus      string        `json:"janus"`
	Data       *responseData `json:"data,omitempty"`
	PluginData *struct {
		Plugin string          `json:"plugin"`
		Data   json.RawMessage `json:"data"`
	} `json:"plugindata,omitempty"`
	Error *responseError `json:"error,omitempty"`
}

// videoroomData is the plugin-specific payload under plugindata.data.
type videoroomData struct {
	VideoRoom string `json:"videoroom"`
	Room      int64  `json:"room"`
	Exists    bool   `json:"exists"`
	ErrorCode int    `json:"error_code"`
	Error     string `json:"error"`
}

type createRoomBody struct {
	Request     string `json:"request"`
	Room        int64  `json:"room"`
	Description string `json:"description"`
	Secret      string `json:"secret,omitempty"`
	Publishers  int    `json:"publishers"`
	Bitrate     int    `json:"bitrate"`
	FirFreq     int    `json:"fir_freq"`
	AudioCodec  string `json:"audiocodec"`
	VideoCodec  string `json:"videocodec"`
	Record      bool   `json:"record"`
}

type destroyRoomBody struct {
	Request string `json:"request"`
	Room    int64  `json:"room"`
	Secret  string `json:"secret,omitempty"`
}

type existsRoomBody struct {
	Request string `json:"request"`
	Room    int64  `json:"room"`
}

// Client drives the Janus control plane. Every operation opens its own
// session and tears it down before returning, so concurrent calls
// share nothing.
type Client struct {
	baseURL   string
	apiSecret string
	http      *http.Client
	logger    *slog.Logger
}

type NewClient_Params struct {
	fx.In

	Logger *slog.Logger
}

func NewClient(params NewClient_Params) *Client {
	return &Client{
		baseURL:   variables.Env(variables.JANUS_URL_NAME, variables.JANUS_URL_DEFAULT),
		apiSecret: variables.Env(variables.JANUS_API_SECRET_NAME, variables.JANUS_API_SECRET_DEFAULT),
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    params.Logger,
	}
}

func (c *Client) post(ctx context.Context, path string, req *request) (*response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// session is a single-use control session. It must never outlive the
// operation that opened it.
type session struct {
	client *Client
	id     int64
}

func (c *Client) openSession(ctx context.Context) (*session, error) {
	resp, err := c.post(ctx, "", &request{
		Janus:       "create",
		Transaction: transactionID(),
		APISecret:   c.apiSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionUnavailable, err)
	}
	if resp.Janus != "success" || resp.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionUnavailable, respReason(resp))
	}
	return &session{client: c, id: resp.Data.ID}, nil
}

func (s *session) attach(ctx context.Context) (int64, error) {
	resp, err := s.client.post(ctx, fmt.Sprintf("/%d", s.id), &request{
		Janus:       "attach",
		Plugin:      videoroomPlugin,
		Transaction: transactionID(),
		APISecret:   s.client.apiSecret,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: attach: %s", ErrProtocol, err)
	}
	if resp.Janus != "success" || resp.Data == nil {
		return 0, fmt.Errorf("%w: attach: %s", ErrProtocol, respReason(resp))
	}
	return resp.Data.ID, nil
}

func (s *session) message(ctx context.Context, handleID int64, body any) (*videoroomData, error) {
	resp, err := s.client.post(ctx, fmt.Sprintf("/%d/%d", s.id, handleID), &request{
		Janus:       "message",
		Transaction: transactionID(),
		APISecret:   s.client.apiSecret,
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: message: %s", ErrProtocol, err)
	}
	if resp.Janus != "success" || resp.PluginData == nil {
		return nil, fmt.Errorf("%w: message: %s", ErrProtocol, respReason(resp))
	}

	var data videoroomData
	if err := json.Unmarshal(resp.PluginData.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: plugindata: %s", ErrProtocol, err)
	}
	return &data, nil
}

// close releases the session on the remote side. Best-effort: the
// operation already has its outcome, and Janus garbage-collects idle
// sessions anyway. Runs on a detached context so a canceled caller
// still fires it.
func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.client.post(ctx, fmt.Sprintf("/%d", s.id), &request{
		Janus:       "destroy",
		Transaction: transactionID(),
		APISecret:   s.client.apiSecret,
	})
	if err != nil {
		s.client.logger.Warn("janus session close failed", slog.Int64("session", s.id), slog.String("err", err.Error()))
	}
}

// CreateRoom creates a VideoRoom on the remote server. The secret
// gates later destruction of the room.
func (c *Client) CreateRoom(ctx context.Context, roomID int64, description, secret string) error {
	sess, err := c.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	handleID, err := sess.attach(ctx)
	if err != nil {
		return err
	}

	data, err := sess.message(ctx, handleID, &createRoomBody{
		Request:     "create",
		Room:        roomID,
		Description: description,
		Secret:      secret,
		Publishers:  defaultPublishers,
		Bitrate:     defaultBitrate,
		FirFreq:     defaultFirFreq,
		AudioCodec:  defaultAudioCodec,
		VideoCodec:  defaultVideoCodec,
		Record:      false,
	})
	if err != nil {
		return err
	}

	if data.VideoRoom != "created" {
		if data.ErrorCode != 0 {
			return fmt.Errorf("%w: create room %d: %s (code %d)", ErrProtocol, roomID, data.Error, data.ErrorCode)
		}
		return fmt.Errorf("%w: create room %d: unexpected videoroom %q", ErrProtocol, roomID, data.VideoRoom)
	}
	return nil
}

// DestroyRoom destroys a VideoRoom. A room the remote no longer knows
// counts as destroyed, so reaping an already-gone room is not an
// error. A rejected secret is.
func (c *Client) DestroyRoom(ctx context.Context, roomID int64, secret string) error {
	sess, err := c.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	handleID, err := sess.attach(ctx)
	if err != nil {
		return err
	}

	data, err := sess.message(ctx, handleID, &destroyRoomBody{
		Request: "destroy",
		Room:    roomID,
		Secret:  secret,
	})
	if err != nil {
		return err
	}

	switch {
	case data.VideoRoom == "destroyed":
		return nil
	case data.ErrorCode == errCodeNoSuchRoom:
		c.logger.Debug("destroy of unknown room treated as success", slog.Int64("room", roomID))
		return nil
	case data.ErrorCode == errCodeUnauthorized:
		c.logger.Error("room secret rejected on destroy", slog.Int64("room", roomID))
		return fmt.Errorf("%w: destroy room %d: %s (code %d)", ErrProtocol, roomID, data.Error, data.ErrorCode)
	case data.ErrorCode != 0:
		return fmt.Errorf("%w: destroy room %d: %s (code %d)", ErrProtocol, roomID, data.Error, data.ErrorCode)
	default:
		return fmt.Errorf("%w: destroy room %d: unexpected videoroom %q", ErrProtocol, roomID, data.VideoRoom)
	}
}

// RoomExists asks the remote whether it still knows the room. Any
// failure is returned as an error, never asserted as a boolean.
func (c *Client) RoomExists(ctx context.Context, roomID int64) (bool, error) {
	sess, err := c.openSession(ctx)
	if err != nil {
		return false, err
	}
	defer sess.close()

	handleID, err := sess.attach(ctx)
	if err != nil {
		return false, err
	}

	data, err := sess.message(ctx, handleID, &existsRoomBody{
		Request: "exists",
		Room:    roomID,
	})
	if err != nil {
		return false, err
	}
	if data.ErrorCode != 0 {
		return false, fmt.Errorf("%w: exists room %d: %s (code %d)", ErrProtocol, roomID, data.Error, data.ErrorCode)
	}
	return data.Exists, nil
}

func respReason(resp *response) string {
	if resp.Error != nil {
		return fmt.Sprintf("%s (code %d)", resp.Error.Reason, resp.Error.Code)
	}
	return fmt.Sprintf("janus %q", resp.Janus)
}
