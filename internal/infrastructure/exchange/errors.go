package exchange

import (
	"errors"
	"fmt"
	"net"

	"github.com/vitos/crypto_futures_dashboard/internal/domain"
)

// translateTransportError marks DNS failures as a network outage. Timeouts
// and resets stay transient so callers retry them.
func translateTransportError(err error) error {
	if err == nil {
		return nil
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	return err
}
