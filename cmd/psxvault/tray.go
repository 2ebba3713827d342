//go:build !linux

package main

import (
	"context"

	"github.com/getlantern/systray"
	"go.uber.org/zap"
)

// runTray shows the systray menu until Quit is clicked or ctx is done.
func runTray(ctx context.Context, browserURL string, openBrowser bool, log *zap.SugaredLogger) {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()

	systray.Run(func() {
		trayStart(browserURL, log)
		if openBrowser {
			openWebUI(browserURL, log)
		}
	}, func() {
		log.Infof("tray: finished quitting")
	})
}

func trayStart(browserURL string, log *zap.SugaredLogger) {
	systray.SetTitle("psxvault")
	systray.SetTooltip("psxvault - PlayStation save manager")
	mOpenWeb := systray.AddMenuItem("Web UI", "Opens the web UI in the default browser")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit")

	// Menu item click handler:
	go func() {
		for {
			select {
			case <-mOpenWeb.ClickedCh:
				openWebUI(browserURL, log)
			case <-mQuit.ClickedCh:
				log.Infof("tray: requesting quit")
				systray.Quit()
				return
			}
		}
	}()
}
