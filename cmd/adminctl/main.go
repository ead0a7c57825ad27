package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/d60-Lab/medorder/internal/service"
)

func main() {
	hashCmd := flag.NewFlagSet("hash-password", flag.ExitOnError)
	password := hashCmd.String("password", "", "Admin password to hash")

	if len(os.Args) < 2 {
		fmt.Println("expected 'hash-password' subcommand")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "hash-password":
		_ = hashCmd.Parse(os.Args[2:])
		if *password == "" {
			fmt.Println("password is required")
			hashCmd.PrintDefaults()
			os.Exit(1)
		}
		hash, err := service.HashPassword(*password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash password failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		fmt.Println("set it as admin.password_hash or MEDORDER_ADMIN_PASSWORD_HASH")
	default:
		fmt.Println("expected 'hash-password' subcommand")
		os.Exit(1)
	}
}
