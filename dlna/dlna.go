package dlna

import (
	"fmt"
	"time"
)

const (
	TimeSeekRangeDomain   = "TimeSeekRange.dlna.org"
	ContentFeaturesDomain = "contentFeatures.dlna.org"
	TransferModeDomain    = "transferMode.dlna.org"
)

type ContentFeatures struct {
	ProfileName     string
	SupportTimeSeek bool
	SupportRange    bool
	//play speeds, DLNA.ORG_PS
	Transcoded bool
}

// flags are in hex. trailing 24 zeroes, 26 are after the space
// "DLNA.ORG_OP=" time-seek-range-supp bytes-range-header-supp

func (cf ContentFeatures) String() (ret string) {
	//DLNA.ORG_PN=[a-zA-Z0-9_]*
	ret = fmt.Sprintf("DLNA.ORG_OP=%02b;DLNA.ORG_CI=%b", func() (ret uint) {
		if cf.SupportTimeSeek {
			ret |= 2
		}
		if cf.SupportRange {
			ret |= 1
		}
		return
	}(), func() uint {
		if cf.Transcoded {
			return 1
		}
		return 0
	}())
	if cf.ProfileName != "" {
		ret = "DLNA.ORG_PN=" + cf.ProfileName + ";" + ret
	}
	return
}

func FormatNPTTime(npt time.Duration) string {
	npt /= time.Millisecond
	ms := npt % 1000
	npt /= 1000
	s := npt % 60
	npt /= 60
	m := npt % 60
	npt /= 60
	h := npt
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, ms)
}
