package api

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/limiter"

	"github.com/ecto-chat/ecto-server/internal/auth"
	"github.com/ecto-chat/ecto-server/internal/config"
	"github.com/ecto-chat/ecto-server/internal/permission"
)

// Handlers bundles everything Register wires onto the app.
type Handlers struct {
	Auth       *AuthHandler
	Server     *ServerHandler
	Channels   *ChannelHandler
	Categories *CategoryHandler
	Messages   *MessageHandler
	Members    *MemberHandler
	Roles      *RoleHandler
	Invites    *InviteHandler
	ReadState  *ReadStateHandler
	AuditLog   *AuditLogHandler
	Dms        *DmHandler
	Webhooks   *WebhookHandler
	Search     *SearchHandler
	Pages      *PageHandler
	Hub        *HubHandler
	Files      *FileHandler
	Health     *HealthHandler
	Gateway    *GatewayHandler
}

// Register wires every route onto the app. Public surface: auth, invite
// info, webhook execute, file serving, the websocket endpoints, and the
// health probe. Everything else sits behind session auth, with permission
// middleware on the routes whose bits are route-wide.
func Register(app *fiber.App, cfg *config.Config, verifier auth.Verifier, perms *permission.Service, h Handlers) {
	app.Get("/health", h.Health.Health)

	// Websocket endpoints authenticate in-band after the upgrade.
	app.Get("/ws", h.Gateway.Gateway, h.Gateway.Upgrade)
	app.Get("/notify", h.Gateway.Notify, h.Gateway.Upgrade)

	app.Get("/files/*", h.Files.Serve)

	v1 := app.Group("/api/v1")

	// Auth routes carry their own, stricter rate limit.
	authGroup := v1.Group("/auth")
	authGroup.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitAuthCount,
		Expiration: time.Duration(cfg.RateLimitAuthWindowSeconds) * time.Second,
	}))
	authGroup.Post("/register", h.Auth.Register)
	authGroup.Post("/login", h.Auth.Login)

	// Public endpoints.
	v1.Get("/invites/:code/info", h.Invites.Info)
	v1.Post("/webhooks/:webhookID/:token", h.Webhooks.Execute, webhookBodyLimit())

	// Everything below requires a session.
	authed := v1.Group("", auth.RequireAuth(verifier))

	// Server.
	authed.Get("/server", h.Server.GetServer)
	authed.Patch("/server", h.Server.UpdateServer, permission.RequireServer(perms, permission.ManageServer))
	authed.Get("/server/config", h.Server.GetConfig, permission.RequireServer(perms, permission.ManageServer))
	authed.Patch("/server/config", h.Server.UpdateConfig, permission.RequireServer(perms, permission.ManageServer))
	authed.Post("/server/join", h.Server.Join)
	authed.Post("/server/leave", h.Server.Leave)

	// Channels.
	authed.Get("/channels", h.Channels.List)
	authed.Post("/channels", h.Channels.Create, permission.RequireServer(perms, permission.ManageChannels))
	authed.Post("/channels/reorder", h.Channels.Reorder, permission.RequireServer(perms, permission.ManageChannels))
	authed.Get("/channels/:channelID", h.Channels.Get, permission.RequireChannel(perms, permission.ReadMessages))
	authed.Patch("/channels/:channelID", h.Channels.Update, permission.RequireChannel(perms, permission.ManageChannels))
	authed.Delete("/channels/:channelID", h.Channels.Delete, permission.RequireChannel(perms, permission.ManageChannels))
	authed.Put("/channels/:channelID/overrides/:targetID", h.Channels.SetOverride, permission.RequireChannel(perms, permission.ManageRoles))
	authed.Delete("/channels/:channelID/overrides/:targetID", h.Channels.DeleteOverride, permission.RequireChannel(perms, permission.ManageRoles))

	// Categories.
	authed.Get("/categories", h.Categories.List)
	authed.Post("/categories", h.Categories.Create, permission.RequireServer(perms, permission.ManageChannels))
	authed.Post("/categories/reorder", h.Categories.Reorder, permission.RequireServer(perms, permission.ManageChannels))
	authed.Patch("/categories/:categoryID", h.Categories.Update, permission.RequireServer(perms, permission.ManageChannels))
	authed.Delete("/categories/:categoryID", h.Categories.Delete, permission.RequireServer(perms, permission.ManageChannels))
	authed.Put("/categories/:categoryID/overrides/:targetID", h.Categories.SetOverride, permission.RequireServer(perms, permission.ManageRoles))
	authed.Delete("/categories/:categoryID/overrides/:targetID", h.Categories.DeleteOverride, permission.RequireServer(perms, permission.ManageRoles))

	// Messages. Writes gate on SEND_MESSAGES, reads on READ_MESSAGES; the
	// Send handler additionally applies slowmode and the attachment bit.
	authed.Get("/channels/:channelID/messages", h.Messages.List, permission.RequireChannel(perms, permission.ReadMessages))
	authed.Post("/channels/:channelID/messages", h.Messages.Send, permission.RequireChannel(perms, permission.SendMessages))
	authed.Get("/channels/:channelID/messages/pins", h.Messages.Pins, permission.RequireChannel(perms, permission.ReadMessages))
	authed.Get("/channels/:channelID/messages/:messageID", h.Messages.Get, permission.RequireChannel(perms, permission.ReadMessages))
	authed.Patch("/channels/:channelID/messages/:messageID", h.Messages.Update, permission.RequireChannel(perms, permission.SendMessages))
	authed.Delete("/channels/:channelID/messages/:messageID", h.Messages.Delete, permission.RequireChannel(perms, permission.ReadMessages))
	authed.Put("/channels/:channelID/messages/:messageID/pin", h.Messages.Pin, permission.RequireChannel(perms, permission.ManageMessages))
	authed.Put("/channels/:channelID/messages/:messageID/reactions", h.Messages.React, permission.RequireChannel(perms, permission.AddReactions))
	authed.Delete("/channels/:channelID/messages/:messageID/reactions", h.Messages.Unreact, permission.RequireChannel(perms, permission.AddReactions))

	// Pages.
	authed.Get("/channels/:channelID/page", h.Pages.Get, permission.RequireChannel(perms, permission.ReadMessages))
	authed.Put("/channels/:channelID/page", h.Pages.Update, permission.RequireChannel(perms, permission.EditPages))
	authed.Get("/channels/:channelID/page/revisions", h.Pages.Revisions, permission.RequireChannel(perms, permission.ReadMessages))
	authed.Post("/channels/:channelID/page/revert", h.Pages.Revert, permission.RequireChannel(perms, permission.EditPages))

	// Members and bans.
	authed.Get("/members", h.Members.List)
	authed.Get("/members/:userID", h.Members.Get)
	authed.Patch("/members/:userID", h.Members.Update)
	authed.Put("/members/:userID/roles", h.Members.UpdateRoles, permission.RequireServer(perms, permission.ManageRoles))
	authed.Delete("/members/:userID", h.Members.Kick, permission.RequireServer(perms, permission.KickMembers))
	authed.Get("/bans", h.Members.ListBans, permission.RequireServer(perms, permission.BanMembers))
	authed.Put("/bans/:userID", h.Members.Ban, permission.RequireServer(perms, permission.BanMembers))
	authed.Delete("/bans/:userID", h.Members.Unban, permission.RequireServer(perms, permission.BanMembers))

	// Roles.
	authed.Get("/roles", h.Roles.List)
	authed.Post("/roles", h.Roles.Create, permission.RequireServer(perms, permission.ManageRoles))
	authed.Post("/roles/reorder", h.Roles.Reorder, permission.RequireServer(perms, permission.ManageRoles))
	authed.Patch("/roles/:roleID", h.Roles.Update, permission.RequireServer(perms, permission.ManageRoles))
	authed.Delete("/roles/:roleID", h.Roles.Delete, permission.RequireServer(perms, permission.ManageRoles))

	// Invites. Revoke authorizes in the handler: creators may revoke their
	// own invites without MANAGE_SERVER.
	authed.Get("/invites", h.Invites.List, permission.RequireServer(perms, permission.ManageServer))
	authed.Post("/invites", h.Invites.Create, permission.RequireServer(perms, permission.CreateInvites))
	authed.Delete("/invites/:inviteID", h.Invites.Revoke)

	// Read state and activity.
	authed.Get("/read-states", h.ReadState.List)
	authed.Get("/read-states/activity", h.ReadState.Activity)
	authed.Put("/read-states/:channelID", h.ReadState.MarkRead)

	// Audit log.
	authed.Get("/auditlog", h.AuditLog.List, permission.RequireServer(perms, permission.ViewAuditLog))

	// Server DMs.
	authed.Post("/dm/open", h.Dms.Open)
	authed.Get("/dm/conversations", h.Dms.List)
	authed.Get("/dm/conversations/:conversationID/messages", h.Dms.History)
	authed.Post("/dm/conversations/:conversationID/messages", h.Dms.Send)
	authed.Patch("/dm/conversations/:conversationID/messages/:messageID", h.Dms.Update)
	authed.Delete("/dm/conversations/:conversationID/messages/:messageID", h.Dms.Delete)
	authed.Put("/dm/conversations/:conversationID/messages/:messageID/reactions", h.Dms.React)
	authed.Delete("/dm/conversations/:conversationID/messages/:messageID/reactions", h.Dms.Unreact)
	authed.Put("/dm/conversations/:conversationID/read", h.Dms.MarkRead)

	// Webhooks.
	authed.Get("/webhooks", h.Webhooks.List, permission.RequireServer(perms, permission.ManageWebhooks))
	authed.Post("/webhooks", h.Webhooks.Create, permission.RequireServer(perms, permission.ManageWebhooks))
	authed.Delete("/webhooks/:webhookID", h.Webhooks.Delete, permission.RequireServer(perms, permission.ManageWebhooks))
	authed.Post("/webhooks/:webhookID/regenerate", h.Webhooks.Regenerate, permission.RequireServer(perms, permission.ManageWebhooks))

	// Search.
	authed.Get("/search/messages", h.Search.Messages)

	// Shared file hub.
	authed.Get("/hub/folders", h.Hub.ListFolders)
	authed.Post("/hub/folders", h.Hub.CreateFolder)
	authed.Patch("/hub/folders/:folderID", h.Hub.RenameFolder)
	authed.Delete("/hub/folders/:folderID", h.Hub.DeleteFolder)
	authed.Get("/hub/files", h.Hub.ListFiles)
	authed.Patch("/hub/files/:fileID", h.Hub.MoveFile)
	authed.Delete("/hub/files/:fileID", h.Hub.DeleteFile)
	authed.Get("/hub/:itemType/:itemID/overrides", h.Hub.ListOverrides)
	authed.Put("/hub/:itemType/:itemID/overrides/:targetID", h.Hub.SetOverride)
	authed.Delete("/hub/:itemType/:itemID/overrides/:targetID", h.Hub.DeleteOverride)

	// Uploads.
	authed.Post("/upload", h.Files.Upload)
	authed.Post("/dm/upload", h.Files.UploadDm)
	authed.Post("/shared/upload", h.Files.UploadShared)
	authed.Post("/upload/icon", h.Files.UploadIcon, permission.RequireServer(perms, permission.ManageServer))
	authed.Post("/upload/banner", h.Files.UploadBanner, permission.RequireServer(perms, permission.ManageServer))
	authed.Post("/upload/page-banner", h.Files.UploadPageBanner, permission.RequireServer(perms, permission.EditPages))
}

// webhookBodyLimit caps unauthenticated webhook bodies at 1 MiB regardless
// of the general upload limit.
func webhookBodyLimit() fiber.Handler {
	const maxBody = 1 << 20
	return func(c fiber.Ctx) error {
		if len(c.Body()) > maxBody {
			return fiber.ErrRequestEntityTooLarge
		}
		return c.Next()
	}
}
