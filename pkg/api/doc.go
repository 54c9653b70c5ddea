// Package api implements the REST control surface: the one documented
// way an operator, the admin UI, or a scripted client reaches the
// orchestration services in pkg/orchestrator. It is built on
// github.com/go-chi/chi/v5 for routing, github.com/go-chi/cors for the
// admin-UI origin, and github.com/go-playground/validator/v10 for
// request validation, enriched from the pack's REST-shaped example
// rather than the teacher (whose own pkg/api is gRPC-only).
//
// Every /api route except POST /api/auth/login runs behind bearer-token
// auth and a permission check resolved through pkg/security's
// TokenManager/RBAC; write operations that go through an orchestrator
// service are additionally audited there. /ws/frontend is the one
// non-REST route: a gorilla/websocket endpoint that checks the bearer
// token (with no permission check) and streams pkg/events.Broker
// notifications to a connected UI client in commit order.
package api
