// Package config loads and saves the gateway's YAML configuration file.
//
// The file describes one hub connection plus the optional monitor and
// capture features:
//
//	hub:
//	  address: 192.168.1.40:4196
//	  user: admin
//	  password: secret
//	  idle_timeout: 60s
//	monitor:
//	  enabled: true
//	  addr: :8480
//	capture:
//	  enabled: false
//	  dir: /var/lib/gatelink/captures
//	logging:
//	  level: info
//
// Load applies defaults for everything the file omits; Watch re-reads
// the file when it changes on disk so a running gateway can pick up
// edits without a manual restart.
package config
