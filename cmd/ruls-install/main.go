// Command ruls-install replaces ls with ruls and puts the original back on uninstall.
package main

import "github.com/oshokin/ruls-install/cmd/ruls-install/cmd"

func main() {
	cmd.Execute()
}
