package main

import "SponsorPay/cmd"

func main() {
	cmd.Execute()
}
