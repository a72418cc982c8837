package constants

// Пути health/ready и REST-эндпоинты живой сессии (форматные строки — id выставки).
const (
	PathHealth = "/health"
	PathReady  = "/ready"

	PathExhibitionFmt = "/exhibitions/%s"
	PathLiveTokenFmt  = "/exhibitions/%s/live-token"
	PathEndLiveFmt    = "/exhibitions/%s/end-live"
	PathRecordingFmt  = "/exhibitions/%s/recording"

	PathSignalingWS = "/ws/live"
	PathWHIP        = "/media/whip"
	PathWHEP        = "/media/whep"
)
