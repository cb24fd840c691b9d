package main

import "github.com/mselser95/reservation-escrow/cmd"

func main() {
	cmd.Execute()
}
