// Package printer formats CLI output for delivered and outbound frames.
package printer

import (
	"fmt"

	"github.com/logrusorgru/aurora"

	"github.com/imandr/easy-stomp/frame"
)

type Printer struct {
	PrintFunc func(format string, a ...interface{}) (n int, err error)
}

func New() *Printer {
	return &Printer{
		PrintFunc: fmt.Printf,
	}
}

// Error is a convenience function for printing errors.
func (p *Printer) Error(str string) {
	p.PrintFunc("%s: %s\n", aurora.Red(">> ERROR"), str)
}

// Print is a convenience function for printing regular output.
func (p *Printer) Print(str string) {
	p.PrintFunc("%s\n", str)
}

// Delivery prints the decoded body of a delivered MESSAGE frame.
func (p *Printer) Delivery(f *frame.Frame) {
	text, err := f.Text()
	if err != nil {
		p.Error(fmt.Sprintf("unable to decode message body: %s", err))
		return
	}

	p.PrintFunc("%s %s\n", aurora.Green("<<<"), text)
}

// ChatDelivery prints a chat MESSAGE frame with its sender handle.
func (p *Printer) ChatDelivery(f *frame.Frame) {
	text, err := f.Text()
	if err != nil {
		p.Error(fmt.Sprintf("unable to decode chat message: %s", err))
		return
	}

	p.PrintFunc("%s [%s] %s\n", aurora.Green("<<"), aurora.Cyan(f.Get("from", "?")), text)
}

// ChatSent prints an outbound chat line under the local handle.
func (p *Printer) ChatSent(id, text string) {
	p.PrintFunc("[%s] %s %s\n", aurora.Cyan(id), aurora.Yellow(">>"), text)
}
