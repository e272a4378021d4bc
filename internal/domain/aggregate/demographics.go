package aggregate

import (
	"github.com/okian/sitestats/internal/domain/model"
)

// Demographics breaks sessions down by location and device. Countries and
// cities are capped; device, browser and OS lists are not.
func Demographics(sessions []model.VisitorSession) model.Demographics {
	return model.Demographics{
		Countries:        Top(GroupByAndPercent(sessions, func(s model.VisitorSession) string { return s.Country }), TopLocations),
		Cities:           Top(GroupByAndPercent(sessions, func(s model.VisitorSession) string { return s.City }), TopLocations),
		Devices:          GroupByAndPercent(sessions, func(s model.VisitorSession) string { return s.Device.Type }),
		Browsers:         GroupByAndPercent(sessions, func(s model.VisitorSession) string { return s.Browser }),
		OperatingSystems: GroupByAndPercent(sessions, func(s model.VisitorSession) string { return s.OS }),
	}
}
