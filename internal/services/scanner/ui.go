package scanner

import (
	"slices"
	"strings"

	"scanbridge/internal/ports"
)

// Elements of the scanner's web UI.
var (
	startScanButton  = ports.Selector{By: ports.ByClass, Value: "sui_buttonStartScan"}
	previewButton    = ports.Selector{By: ports.ByClass, Value: "sui_buttonPreviewCommon"}
	alertFirstButton = ports.Selector{By: ports.ByID, Value: "sui_alertFirstButton"}
	alertLastButton  = ports.Selector{By: ports.ByID, Value: "sui_alertLastButton"}
	stopButton       = ports.Selector{By: ports.ByClass, Value: "osr_icon_stopButton"}
	pauseButton      = ports.Selector{By: ports.ByClass, Value: "sui_buttonPauseScan"}
)

const inactivePauseClass = "sui_buttonInactivePauseScan"

func hasClass(classes, class string) bool {
	return slices.Contains(strings.Fields(classes), class)
}
