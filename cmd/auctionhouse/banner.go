package main

import (
	"fmt"
	"strings"
	"time"
)

const (
	clearLine = "\033[2K"
	moveUp    = "\033[%dA"
)

// showBanner prints the logo and, unless skipped, a short gavel countdown
func showBanner(skipAnimation bool) {
	width := 62
	border := strings.Repeat("═", width)

	logo := []string{
		"     _              _   _               _                       ",
		"    /_\\ _  _ __ _ _| |_(_)___ _ _  | |_  ___ _  _ ___ ___     ",
		"   / _ \\ || / _|  _|  _| / _ \\ ' \\ | ' \\/ _ \\ || (_-</ -_)    ",
		"  /_/ \\_\\_,_\\__|\\__|\\__|_\\___/_||_||_||_\\___/\\_,_/__/\\___|    ",
	}

	fmt.Printf("\n  %s╔%s╗%s\n", cyan, border, reset)
	for _, line := range logo {
		line = fitWidth(line, width)
		fmt.Printf("  %s║%s%s%s║%s\n", cyan, yellow, line, cyan, reset)
	}

	if skipAnimation {
		fmt.Printf("  %s╚%s╝%s\n\n", cyan, border, reset)
		return
	}

	calls := []string{"Going once...", "Going twice...", "SOLD!"}
	for i, call := range calls {
		if i > 0 {
			fmt.Printf(moveUp, 2)
		}
		color := cyan
		if i == len(calls)-1 {
			color = green
		}
		text := fitWidth("  "+strings.Repeat("  ", i*6)+call, width)
		fmt.Printf("%s  %s║%s%s%s║%s\n", clearLine, cyan, color, text, cyan, reset)
		fmt.Printf("%s  %s╚%s╝%s\n", clearLine, cyan, border, reset)
		time.Sleep(300 * time.Millisecond)
	}
	fmt.Println()
}

// fitWidth pads or truncates s to exactly width runes
func fitWidth(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-len(r))
}
