package mixflow

import (
	"fyne.io/systray"

	"github.com/MixyLabs/mixflow/pkg/mixflow/util"
)

func (d *Mixflow) initializeTray(onDone func()) {
	logger := d.logger.Named("tray")

	onReady := func() {
		logger.Debug("Tray instance ready")

		systray.SetTitle("mixflow")
		systray.SetTooltip("mixflow")

		openState := systray.AddMenuItem("Open state file", "Inspect the persisted routing state")

		reapplyRoutes := systray.AddMenuItem("Re-apply device routes", "Nudge every categorized app towards its stream's device")

		if d.version != "" {
			systray.AddSeparator()
			versionInfo := systray.AddMenuItem(d.version, "")
			versionInfo.Disable()
		}

		systray.AddSeparator()
		quit := systray.AddMenuItem("Quit", "Stop mixflow and quit")

		go func() {
			for {
				select {
				case <-quit.ClickedCh:
					logger.Info("Quit menu item clicked, stopping")

					d.signalStop()

				case <-openState.ClickedCh:
					logger.Info("Open state menu item clicked, opening state file")

					editor := "notepad.exe"
					if util.Linux() {
						editor = "gedit"
					}

					if err := util.OpenExternal(logger, editor, d.engine.store.Path()); err != nil {
						logger.Warnw("Failed to open state file for inspection", "error", err)
					}

				case <-reapplyRoutes.ClickedCh:
					logger.Info("Re-apply routes menu item clicked")
					d.engine.ReapplyRoutes()
				}
			}
		}()

		onDone()
	}

	onExit := func() {
		logger.Debug("Tray exited")
	}

	logger.Debug("Running in tray")
	systray.Run(onReady, onExit)
}

func (d *Mixflow) stopTray() {
	d.logger.Debug("Quitting tray")
	systray.Quit()
}
