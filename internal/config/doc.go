// Package config loads conductor's settings and the Service Definition Store.
//
// Configuration lives in a single directory. The default is
// ~/.config/conductor; commands accept --config-path to override it.
//
// # Configuration Directory
//
//	config.yaml          orchestrator settings, server and logging sections
//	services/*.yaml      one ServiceDefinition per file
//
// A missing config.yaml yields GetDefaultConfig(). Service files are decoded on
// top of DefaultServiceDefinition, so omitted keys inherit the orchestrator
// settings (probe interval and timeout, restart policy, algorithm).
//
// # Example service
//
//	name: stt
//	deployment:
//	  runtime: docker
//	  image: ghcr.io/example/stt:1.4
//	  ports: ["8000"]
//	  env:
//	    INSTANCE: "{{ .InstanceID }}"
//	dependsOn:
//	  - llm                      # required
//	  - service: metrics-sink
//	    required: false
//	healthProbe:
//	  kind: http
//	  path: /health
//	  interval: 5s
//	minInstances: 2
//	maxInstances: 6
//
// # Validation
//
// Struct tags are checked with go-playground/validator; semantic rules that
// tags cannot express (min <= max, self and duplicate dependencies, duplicate
// names) are checked by ValidateDefinition and ValidateDefinitions. Errors from
// file loading are reported as ConfigurationError values carrying the file
// path and suggestions.
//
// # Hot Reload
//
// Watcher uses fsnotify on the services directory and calls back once changes
// settle for the configured debounce interval.
package config
