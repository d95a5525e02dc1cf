package libvirt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"libvirt.org/go/libvirt"
)

const DefaultURI = "qemu:///system"

type ConnectionManager struct {
	conn   *libvirt.Connect
	mu     sync.Mutex
	uri    string
	logger *slog.Logger
}

func NewConnectionManager(uri string, logger *slog.Logger) (*ConnectionManager, error) {
	if uri == "" {
		uri = DefaultURI
	}

	conn, err := libvirt.NewConnect(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}

	logger.Info("libvirt connection established", slog.String("uri", uri))

	return &ConnectionManager{
		conn:   conn,
		uri:    uri,
		logger: logger,
	}, nil
}

// withConn runs fn with a live connection, reconnecting first when the
// current one has dropped.
func (cm *ConnectionManager) withConn(fn func(conn *libvirt.Connect) error) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	alive, err := cm.conn.IsAlive()
	if err != nil || !alive {
		cm.logger.Warn("connection unhealthy, attempting reconnect")
		if err := cm.reconnect(); err != nil {
			return err
		}
	}

	return fn(cm.conn)
}

func (cm *ConnectionManager) reconnect() error {
	if cm.conn != nil {
		cm.conn.Close()
	}

	conn, err := libvirt.NewConnect(cm.uri)
	if err != nil {
		return fmt.Errorf("reconnection failed: %w", err)
	}

	cm.conn = conn
	cm.logger.Info("libvirt reconnected", slog.String("uri", cm.uri))
	return nil
}

// DomainExists reports whether a domain with the given name is defined.
func (cm *ConnectionManager) DomainExists(name string) (bool, error) {
	var exists bool
	err := cm.withConn(func(conn *libvirt.Connect) error {
		domain, err := conn.LookupDomainByName(name)
		if err != nil {
			var lverr libvirt.Error
			if errors.As(err, &lverr) && lverr.Code == libvirt.ERR_NO_DOMAIN {
				return nil
			}
			return fmt.Errorf("error checking if VM exists: %w", err)
		}
		defer domain.Free()

		exists = true
		return nil
	})
	return exists, err
}

// DefineDomain persists the domain XML and optionally boots it.
func (cm *ConnectionManager) DefineDomain(xml string, start bool) error {
	return cm.withConn(func(conn *libvirt.Connect) error {
		domain, err := conn.DomainDefineXML(xml)
		if err != nil {
			return fmt.Errorf("could not define VM from libvirt XML: %w", err)
		}
		defer domain.Free()

		if !start {
			return nil
		}

		if err := domain.Create(); err != nil {
			return fmt.Errorf("could not start VM: %w", err)
		}
		return nil
	})
}

// GetURI returns the libvirt URI being used
func (cm *ConnectionManager) GetURI() string {
	return cm.uri
}

func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.conn != nil {
		cm.logger.Info("closing libvirt connection")
		_, err := cm.conn.Close()
		return err
	}
	return nil
}
