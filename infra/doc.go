// Package infra contains technical adapters: partner pushers, the MQTT
// ingress, CDR spools, flush logs and metrics exporters. These packages depend
// on the interfaces defined in the core packages.
package infra
