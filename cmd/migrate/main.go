package main

import (
	"os"

	"loanadmin.org/internal/obs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		obs.Logger().WithError(err).Error("migrate failed")
		os.Exit(1)
	}
}
