package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "craigd"}

	root.AddCommand(serveCMD(), watchCMD(), prefetchCMD(), accessCMD())
	_ = root.Execute()
}
