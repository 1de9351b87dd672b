package correlate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Hara602/usbAudit/internal/model"
	"go.uber.org/zap"
)

// NoReverseDNS stands in for a hostname when the reverse lookup fails or
// comes back empty.
const NoReverseDNS = "(no reverse DNS)"

// Resolver is the slice of the system probe the attributor needs.
type Resolver interface {
	ResolveHostname(ctx context.Context, ip string) (string, error)
	ResolveOwningProcess(ctx context.Context, ip string) (string, error)
}

// Attribution is what was learned about one new connection.
type Attribution struct {
	Record   model.ConnectionRecord
	Conn     model.Connection
	Hostname string
	Process  string
	// Err is set when the owning-process lookup itself failed. Such a
	// connection is neither attributed nor flagged.
	Err error
}

// Result of one attribution pass.
type Result struct {
	Alerts       []model.Alert
	Attributions []Attribution
	// Skipped counts records that could not be parsed.
	Skipped int
}

type Attributor struct {
	resolver Resolver
	log      *zap.Logger
	now      func() time.Time
}

func NewAttributor(r Resolver, log *zap.Logger) *Attributor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Attributor{resolver: r, log: log, now: time.Now}
}

// Attribute resolves the remote host and owning process of every record in
// conns. A connection whose owning-process query succeeds with no output
// produces one UNATTRIBUTED_CONNECTION alert: either it closed before the
// lookup or its process is hidden, and the two cannot be told apart here.
func (a *Attributor) Attribute(ctx context.Context, conns model.ConnectionSnapshot) Result {
	var res Result

	for _, rec := range conns.Records() {
		if ctx.Err() != nil {
			break
		}

		conn, err := rec.Parse()
		if err != nil {
			if !errors.Is(err, model.ErrNoRemote) {
				res.Skipped++
				a.log.Debug("skipping connection record", zap.Error(err))
			}
			continue
		}

		ip := conn.Remote.Addr.WithZone("").String()
		at := Attribution{Record: rec, Conn: conn, Hostname: a.hostname(ctx, ip)}
		a.log.Debug(fmt.Sprintf("-> %s [%s]", ip, at.Hostname))

		owner, err := a.resolver.ResolveOwningProcess(ctx, ip)
		switch {
		case err != nil:
			at.Err = err
			a.log.Warn("owning process lookup failed", zap.String("ip", ip), zap.Error(err))
		case strings.TrimSpace(owner) != "":
			at.Process = owner
			a.log.Debug(owner)
		default:
			alert := model.NewAlert(model.KindUnattributedConnection, UnattributedMessage(ip), a.now())
			a.log.Warn(alert.Message)
			res.Alerts = append(res.Alerts, alert)
		}
		res.Attributions = append(res.Attributions, at)
	}
	return res
}

func (a *Attributor) hostname(ctx context.Context, ip string) string {
	name, err := a.resolver.ResolveHostname(ctx, ip)
	if err != nil {
		a.log.Debug("reverse lookup failed", zap.String("ip", ip), zap.Error(err))
		return NoReverseDNS
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return NoReverseDNS
	}
	return name
}

// UnattributedMessage is the alert text for a connection nobody owns.
func UnattributedMessage(ip string) string {
	return fmt.Sprintf("Red Flag: Connection to unknown IP %s with no matching process! "+
		"This could indicate unauthorized data exfiltration or communication with a malicious server. "+
		"Monitor the traffic or block the IP if it is not recognized.", ip)
}
