package main

import (
	// clinic zones resolve on hosts without a zoneinfo database
	_ "time/tzdata"

	"github.com/KaramelBytes/clinicpulse-cli/cmd"
)

func main() {
	cmd.Execute()
}
