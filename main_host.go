//go:build !tinygo

package main

import "fmt"

func main() {
	fmt.Println("this is pico firmware, build it with tinygo")
}
