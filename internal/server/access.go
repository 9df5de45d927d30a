package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/otherstuff/craigd/internal/cvm"
)

type accessRequest struct {
	Npub  string `json:"npub,omitempty"`
	Token string `json:"token"`
	Mode  string `json:"mode,omitempty"`
}

// AccessDecision is the normalized verdict from the remote access tool.
type AccessDecision struct {
	Decision string  `json:"decision"`
	Amount   float64 `json:"amount,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	MintURL  string  `json:"mintUrl,omitempty"`
	Mode     string  `json:"mode,omitempty"`
}

// accessCheck forwards an encoded payment token to the remote access tool and
// normalizes its reply. A tool-side failure is a denial, not a server error.
func (s *Server) accessCheck(c echo.Context) error {
	var req accessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Token) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token required")
	}

	decision := CheckAccess(c.Request().Context(), s.Runner, s.Cfg.Tools.AccessTool, req.Token, s.Log)
	if decision.Mode == "" {
		decision.Mode = req.Mode
	}
	return c.JSON(http.StatusOK, decision)
}

// CheckAccess resolves the access tool, calls it and normalizes the outcome.
// Shared with the one-shot CLI command.
func CheckAccess(ctx context.Context, runner cvm.Runner, preferred, token string, logger *log.Logger) AccessDecision {
	tool := preferred
	if tools, err := runner.ListTools(ctx); err != nil {
		logger.Printf("failed to list tools: %v", err)
	} else {
		tool = cvm.ResolveTool(tools, preferred, cvm.AccessToolHints...)
	}

	text, err := runner.CallTool(ctx, tool, map[string]any{"encodedToken": token})
	if err != nil {
		logger.Printf("access tool %s failed: %v", tool, err)
		return AccessDecision{Decision: "ACCESS_DENIED", Reason: err.Error()}
	}

	var decision AccessDecision
	if err := json.Unmarshal([]byte(text), &decision); err == nil && decision.Decision != "" {
		return decision
	}
	// Plain-text replies still count when they carry an explicit verdict.
	if strings.Contains(strings.ToUpper(text), "ACCESS_GRANTED") {
		return AccessDecision{Decision: "ACCESS_GRANTED", Reason: strings.TrimSpace(text)}
	}
	return AccessDecision{Decision: "ACCESS_DENIED", Reason: strings.TrimSpace(text)}
}
