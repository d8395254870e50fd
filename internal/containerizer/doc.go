// Package containerizer launches and stops service instances.
//
// A Launcher turns a rendered deployment into a running instance and reports
// the address it listens on. Three runtimes exist:
//
//   - DockerLauncher: the docker CLI (run -d, port lookup, stop, kill, rm)
//   - ProcessLauncher: local child processes, SIGTERM then SIGKILL
//   - StaticLauncher: an endpoint that already exists, nothing is started
//
// Multi dispatches on deployment.runtime and remembers which launcher owns
// each instance so Terminate and Kill need only the instance ID.
//
// Deployment fields are Go templates with the sprig functions available.
// Render expands them against the instance before launch:
//
//	env:
//	  PORT: "{{ add 9100 .Index }}"
//	  NAME: "{{ .Service }}-{{ .ShortID }}"
//	address: "127.0.0.1:{{ add 9100 .Index }}"
package containerizer
