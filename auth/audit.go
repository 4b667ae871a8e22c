package auth

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditMethod is called to log the audit trail of actions, grounded on the
// go-mysql-server's AuditMethod/AuditLog shape but keyed by plain (user, query,
// address, connection id) fields instead of a *sql.Context — session.Context
// supplies those fields without auth needing to import session.
type AuditMethod interface {
	// Authentication logs an authentication event.
	Authentication(user, address string, err error)
	// Authorization logs an authorization event.
	Authorization(user string, connID uint32, p Permission, err error)
	// Query logs a query execution.
	Query(user string, connID uint32, query string, d time.Duration, err error)
}

// NewAudit creates a wrapped Auth that sends audit trails to the specified
// method.
func NewAudit(auth Auth, method AuditMethod) Auth {
	return &Audit{
		auth:   auth,
		method: method,
	}
}

// Audit is an Auth method proxy that sends audit trails to the specified
// AuditMethod.
type Audit struct {
	auth   Auth
	method AuditMethod
}

// Authenticate implements Auth.
func (a *Audit) Authenticate(user, password string) error {
	err := a.auth.Authenticate(user, password)
	a.method.Authentication(user, "", err)
	return err
}

// Allowed implements Auth.
func (a *Audit) Allowed(user string, permission Permission) error {
	err := a.auth.Allowed(user, permission)
	a.method.Authorization(user, 0, permission, err)
	return err
}

// NewAuditLog creates a new AuditMethod that logs to a logrus.Logger.
func NewAuditLog(l *logrus.Logger) AuditMethod {
	la := l.WithField("system", "audit")

	return &AuditLog{
		log: la,
	}
}

const auditLogMessage = "audit trail"

// AuditLog logs audit trails to a logrus.Logger.
type AuditLog struct {
	log *logrus.Entry
}

// Authentication implements AuditMethod.
func (a *AuditLog) Authentication(user string, address string, err error) {
	fields := logrus.Fields{
		"action":  "authentication",
		"user":    user,
		"address": address,
		"success": true,
	}

	if err != nil {
		fields["success"] = false
		fields["err"] = err
	}

	a.log.WithFields(fields).Info(auditLogMessage)
}

func auditInfo(user string, connID uint32, err error) logrus.Fields {
	fields := logrus.Fields{
		"user":          user,
		"connection_id": connID,
		"success":       true,
	}

	if err != nil {
		fields["success"] = false
		fields["err"] = err
	}

	return fields
}

// Authorization implements AuditMethod.
func (a *AuditLog) Authorization(user string, connID uint32, p Permission, err error) {
	fields := auditInfo(user, connID, err)
	fields["action"] = "authorization"
	fields["permission"] = p.String()

	a.log.WithFields(fields).Info(auditLogMessage)
}

// Query implements AuditMethod.
func (a *AuditLog) Query(user string, connID uint32, query string, d time.Duration, err error) {
	fields := auditInfo(user, connID, err)
	fields["action"] = "query"
	fields["query"] = query
	fields["duration"] = d

	a.log.WithFields(fields).Info(auditLogMessage)
}
