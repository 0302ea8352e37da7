package mixflow

import "errors"

func showAudioFlyout() error {
	return errors.New("not implemented")
}
