// Package integration defines the ports to the external systems this engine
// reconciles between: the ERP, the sales channel, the configuration store and
// the notification sink. Following the Ports & Adapters pattern the interfaces
// live in the domain layer; concrete adapters (Odoo, Amazon, gorm, redis) are
// in the infrastructure layer. The core owns no wire format; it is strictly
// a consumer of these contracts.
package integration
