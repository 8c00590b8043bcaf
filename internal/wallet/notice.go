package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/notification"
	"github.com/gabapcia/dappkit/internal/pkg/logger"
)

// evaluateNoticeLocked raises the unsupported-network warning for id, or
// clears it when id is allowed. At most one warning is shown; raising again
// replaces it. Nothing is raised during startup.
func (s *service) evaluateNoticeLocked(ctx context.Context, id chains.ChainID) {
	if s.chains.IsAllowed(id) {
		if s.noticeID != "" {
			s.cfg.notifier.Hide(s.noticeID)
			s.noticeID = ""
		}
		return
	}

	if s.initializing {
		return
	}

	if s.noticeID != "" {
		s.cfg.notifier.Hide(s.noticeID)
	}

	s.noticeID = s.cfg.notifier.Show(s.unsupportedMessage(id), notification.SeverityWarning, notification.Persistent())
	logger.Warn(ctx, "wallet on unsupported network", "chain.id", id.String())
}

func (s *service) unsupportedMessage(id chains.ChainID) string {
	var supported []string
	for _, n := range s.chains.Visible() {
		supported = append(supported, n.Name)
	}

	return fmt.Sprintf("Unsupported network %s. Please switch to %s.",
		s.chains.DisplayName(id),
		strings.Join(supported, " or "),
	)
}
