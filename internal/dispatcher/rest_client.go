package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/metrics"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

// Route names double as rate limit bucket keys and metric labels.
const (
	routeBan           = "ban"
	routeUnban         = "unban"
	routeKick          = "kick"
	routeMemberPatch   = "member_patch"
	routeRoleRemove    = "role_remove"
	routeRoleAdd       = "role_add"
	routeMessageDelete = "message_delete"
	routeMessageCreate = "message_create"
	routeDMOpen        = "dm_open"
)

// RESTPlatform talks to the Discord REST API over fasthttp.
type RESTPlatform struct {
	baseURL string
	token   string
	timeout time.Duration
	pool    *HTTPPool
	limits  *RateLimitMonitor
	logger  *zap.Logger
}

func NewRESTPlatform(baseURL, token string, timeout time.Duration, pool *HTTPPool, limits *RateLimitMonitor, logger *zap.Logger) *RESTPlatform {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RESTPlatform{
		baseURL: baseURL,
		token:   token,
		timeout: timeout,
		pool:    pool,
		limits:  limits,
		logger:  logger.Named("rest"),
	}
}

type restCall struct {
	route   string
	method  string
	path    string
	guildID uint64
	reason  string
	body    any
	// A 404 means the action already took effect.
	notFoundOK bool
}

func (p *RESTPlatform) Warn(ctx context.Context, guildID, userID uint64, reason string) error {
	var channel struct {
		ID string `json:"id"`
	}
	err := p.do(ctx, restCall{
		route:   routeDMOpen,
		method:  fasthttp.MethodPost,
		path:    "/users/@me/channels",
		guildID: guildID,
		body:    map[string]string{"recipient_id": strconv.FormatUint(userID, 10)},
	}, &channel)
	if err != nil {
		return err
	}
	channelID, err := strconv.ParseUint(channel.ID, 10, 64)
	if err != nil {
		return models.Permanent(fmt.Errorf("bad dm channel id %q", channel.ID))
	}
	return p.sendMessage(ctx, channelID, guildID, "⚠️ You have received a moderation warning: "+reason)
}

func (p *RESTPlatform) Timeout(ctx context.Context, guildID, userID uint64, until time.Time, reason string) error {
	return p.do(ctx, restCall{
		route:   routeMemberPatch,
		method:  fasthttp.MethodPatch,
		path:    fmt.Sprintf("/guilds/%d/members/%d", guildID, userID),
		guildID: guildID,
		reason:  reason,
		body:    map[string]any{"communication_disabled_until": until.UTC().Format(time.RFC3339)},
	}, nil)
}

func (p *RESTPlatform) ClearTimeout(ctx context.Context, guildID, userID uint64, reason string) error {
	return p.do(ctx, restCall{
		route:      routeMemberPatch,
		method:     fasthttp.MethodPatch,
		path:       fmt.Sprintf("/guilds/%d/members/%d", guildID, userID),
		guildID:    guildID,
		reason:     reason,
		body:       map[string]any{"communication_disabled_until": nil},
		notFoundOK: true,
	}, nil)
}

func (p *RESTPlatform) Kick(ctx context.Context, guildID, userID uint64, reason string) error {
	return p.do(ctx, restCall{
		route:   routeKick,
		method:  fasthttp.MethodDelete,
		path:    fmt.Sprintf("/guilds/%d/members/%d", guildID, userID),
		guildID: guildID,
		reason:  reason,
	}, nil)
}

func (p *RESTPlatform) Ban(ctx context.Context, guildID, userID uint64, reason string) error {
	return p.do(ctx, restCall{
		route:   routeBan,
		method:  fasthttp.MethodPut,
		path:    fmt.Sprintf("/guilds/%d/bans/%d", guildID, userID),
		guildID: guildID,
		reason:  reason,
		body:    map[string]int{"delete_message_seconds": 0},
	}, nil)
}

func (p *RESTPlatform) Unban(ctx context.Context, guildID, userID uint64, reason string) error {
	return p.do(ctx, restCall{
		route:      routeUnban,
		method:     fasthttp.MethodDelete,
		path:       fmt.Sprintf("/guilds/%d/bans/%d", guildID, userID),
		guildID:    guildID,
		reason:     reason,
		notFoundOK: true,
	}, nil)
}

func (p *RESTPlatform) DeleteMessage(ctx context.Context, channelID, messageID uint64, reason string) error {
	return p.do(ctx, restCall{
		route:  routeMessageDelete,
		method: fasthttp.MethodDelete,
		path:   fmt.Sprintf("/channels/%d/messages/%d", channelID, messageID),
		reason: reason,
	}, nil)
}

// RestoreMessage reposts removed content on the author's behalf.
func (p *RESTPlatform) RestoreMessage(ctx context.Context, channelID, authorID uint64, content string) error {
	return p.sendMessage(ctx, channelID, 0, fmt.Sprintf("♻️ Restored message from <@%d>:\n%s", authorID, content))
}

func (p *RESTPlatform) RemoveRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64, reason string) error {
	for _, roleID := range roleIDs {
		err := p.do(ctx, restCall{
			route:   routeRoleRemove,
			method:  fasthttp.MethodDelete,
			path:    fmt.Sprintf("/guilds/%d/members/%d/roles/%d", guildID, userID, roleID),
			guildID: guildID,
			reason:  reason,
		}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *RESTPlatform) RestoreRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64, reason string) error {
	for _, roleID := range roleIDs {
		err := p.do(ctx, restCall{
			route:   routeRoleAdd,
			method:  fasthttp.MethodPut,
			path:    fmt.Sprintf("/guilds/%d/members/%d/roles/%d", guildID, userID, roleID),
			guildID: guildID,
			reason:  reason,
		}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *RESTPlatform) sendMessage(ctx context.Context, channelID, guildID uint64, content string) error {
	return p.do(ctx, restCall{
		route:   routeMessageCreate,
		method:  fasthttp.MethodPost,
		path:    fmt.Sprintf("/channels/%d/messages", channelID),
		guildID: guildID,
		body:    map[string]string{"content": content},
	}, nil)
}

func (p *RESTPlatform) do(ctx context.Context, call restCall, out any) error {
	if err := p.limits.Wait(ctx, call.route, call.guildID); err != nil {
		return models.Transient(err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.baseURL + call.path)
	req.Header.SetMethod(call.method)
	req.Header.Set("Authorization", "Bot "+p.token)
	if call.reason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.PathEscape(call.reason))
	}
	if call.body != nil {
		body, err := sonic.Marshal(call.body)
		if err != nil {
			return models.Permanent(fmt.Errorf("failed to encode %s body: %w", call.route, err))
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	start := time.Now()
	err := p.pool.GetClient().DoTimeout(req, resp, timeout)
	if err != nil {
		metrics.PlatformRequestDuration.WithLabelValues(call.route, "error").Observe(time.Since(start).Seconds())
		return models.Transient(fmt.Errorf("%s %s: %w", call.method, call.route, err))
	}

	status := resp.StatusCode()
	metrics.PlatformRequestDuration.WithLabelValues(call.route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	p.limits.UpdateFromFastHTTPResponse(resp, call.route, call.guildID)

	if err := classifyStatus(status, call.notFoundOK); err != nil {
		p.logger.Debug("Request rejected",
			zap.String("route", call.route),
			zap.Int("status", status),
			zap.ByteString("body", resp.Body()))
		return fmt.Errorf("%s %s: %w", call.method, call.route, err)
	}

	if out != nil && len(resp.Body()) > 0 {
		if err := sonic.Unmarshal(resp.Body(), out); err != nil {
			return models.Permanent(fmt.Errorf("failed to decode %s response: %w", call.route, err))
		}
	}
	return nil
}

var errStatus = errors.New("unexpected status")

func classifyStatus(status int, notFoundOK bool) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == fasthttp.StatusNotFound && notFoundOK:
		return nil
	case status == fasthttp.StatusTooManyRequests, status >= 500:
		return models.Transient(fmt.Errorf("%w %d", errStatus, status))
	default:
		return models.Permanent(fmt.Errorf("%w %d", errStatus, status))
	}
}
