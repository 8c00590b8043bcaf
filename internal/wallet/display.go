package wallet

import (
	"context"
	"strings"

	"github.com/gabapcia/dappkit/internal/names"
	"github.com/gabapcia/dappkit/internal/pkg/logger"
	"github.com/gabapcia/dappkit/internal/pkg/types"
)

// Display is what the connect button shows: the shortened address first,
// then the resolved name once a lookup succeeds.
type Display struct {
	Connected bool
	Address   string
	Short     string
	Name      string
	Avatar    string
	Source    names.Source
}

// ShortenAddress renders address as "0xAbC...1234".
func ShortenAddress(address string) string {
	return types.Shorten(address, 5, 4)
}

func (s *service) Display() Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

func (s *service) publishDisplay() {
	s.cfg.displayHook(s.Display())
}

// setAccountLocked records the live account. A new address resets the
// display to the bare address and starts a name lookup.
func (s *service) setAccountLocked(address string) {
	if strings.EqualFold(s.account, address) && s.display.Connected {
		return
	}

	s.account = address
	s.display = Display{
		Connected: true,
		Address:   address,
		Short:     ShortenAddress(address),
	}
	s.resolveLocked(address)
}

func (s *service) clearAccountLocked() {
	s.account = ""
	s.resolution++
	s.display = Display{}
}

// resolveLocked looks up a name for address in the background. The result
// is applied only if no newer lookup started and address is still the live
// account.
func (s *service) resolveLocked(address string) {
	s.resolution++
	if s.cfg.resolver == nil {
		return
	}

	seq := s.resolution
	s.backgroundLocked(func(ctx context.Context) {
		result, ok := s.cfg.resolver.Resolve(ctx, address)
		if !ok {
			return
		}

		s.mu.Lock()
		if seq != s.resolution || !strings.EqualFold(s.account, address) {
			s.mu.Unlock()
			logger.Debug(ctx, "discarding stale name resolution", "wallet.address", address)
			return
		}
		s.display.Name = result.Name
		s.display.Avatar = result.Avatar
		s.display.Source = result.Source
		s.mu.Unlock()

		s.publishDisplay()
	})
}

func (s *service) NameResolutionOrder() names.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order
}

func (s *service) SetNameResolutionOrder(ctx context.Context, order names.Order) error {
	order, err := names.ParseOrder(string(order))
	if err != nil {
		logger.Warn(ctx, "invalid name resolution order", "error", err)
		return err
	}

	if s.cfg.resolver != nil {
		if err := s.cfg.resolver.SetOrder(order); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = order
	if s.account != "" && s.state == StateConnected {
		s.display.Name, s.display.Avatar, s.display.Source = "", "", ""
		s.resolveLocked(s.account)
	}
	return nil
}
