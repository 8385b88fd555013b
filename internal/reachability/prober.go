package reachability

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Prober 周期性拨号探测地址：可达时上报配置的网络类别，否则上报不可达。
type Prober struct {
	*Static

	address  string
	interval time.Duration
	class    Class
	dial     func(ctx context.Context, network, address string) (net.Conn, error)
	logger   *logrus.Logger
}

// NewProber 创建探测器，初始状态视为可达，避免首次探测前误判离线。
func NewProber(address string, interval time.Duration, class Class, logger *logrus.Logger) *Prober {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return &Prober{
		Static:   NewStatic(class),
		address:  address,
		interval: interval,
		class:    class,
		dial:     dialer.DialContext,
		logger:   logger,
	}
}

// Probe 执行一次探测并更新状态。
func (p *Prober) Probe(ctx context.Context) Class {
	next := p.class
	conn, err := p.dial(ctx, "tcp", p.address)
	if err != nil {
		next = Unreachable
	} else {
		conn.Close()
	}

	if prev := p.Class(); prev != next {
		fields := logrus.Fields{
			"action":  "reachability_probe",
			"address": p.address,
			"from":    prev.String(),
			"to":      next.String(),
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		p.logger.WithFields(fields).Info("reachability_changed")
	}
	p.Set(next)
	return next
}

// Run 立即探测一次，随后按间隔探测直到 ctx 取消。
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
