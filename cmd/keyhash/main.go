// Command keyhash prints the bcrypt hash of an API key for API_KEY_HASHES.
//
//	keyhash my-secret-key
//	echo -n my-secret-key | keyhash
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	key, err := readKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keyhash: %v\n", err)
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keyhash: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}

func readKey() (string, error) {
	if len(os.Args) > 1 {
		return os.Args[1], nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("no key given: %w", err)
		}
		return "", fmt.Errorf("no key given")
	}
	return line, nil
}
