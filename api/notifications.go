package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-dashboard-client/adapters"
)

const (
	RouteNotifications        = "/v1/notifications/"
	RouteNotificationsCount   = "/v1/notifications/count"
	RouteNotificationsReadAll = "/v1/notifications/read-all"
)

type NotificationEndpoints struct {
	c *Client
}

func (e *NotificationEndpoints) List(ctx context.Context, params map[string]string) ([]adapters.Notification, error) {
	raw, err := e.c.Request(ctx, RouteNotifications, RequestOptions{Query: queryOf(params)})
	if err != nil {
		return []adapters.Notification{}, err
	}
	return decode(e.c, RouteNotifications, raw, adapters.DecodeNotifications)
}

func (e *NotificationEndpoints) Count(ctx context.Context, params map[string]string) (int64, error) {
	raw, err := e.c.Request(ctx, RouteNotificationsCount, RequestOptions{Query: queryOf(params)})
	if err != nil {
		return 0, err
	}
	return decode(e.c, RouteNotificationsCount, raw, adapters.DecodeNotificationCount)
}

func (e *NotificationEndpoints) MarkRead(ctx context.Context, notificationID string) error {
	_, err := e.c.Request(ctx, RouteNotifications+url.PathEscape(notificationID)+"/read", RequestOptions{Method: http.MethodPut})
	return err
}

func (e *NotificationEndpoints) MarkAllRead(ctx context.Context, userID string) error {
	_, err := e.c.Request(ctx, RouteNotificationsReadAll, RequestOptions{
		Method: http.MethodPut,
		Query:  url.Values{"user_id": []string{userID}},
	})
	return err
}
