package sqlinline

const QSelectSettingsByOwner = `--sql 56e255cc-33cc-4138-b7f3-b3b049def0d4
select owner_id, target_country, target_language, own_brand, competitors, updated_at
from affiliate_settings
where owner_id = $1::text
limit 1;
`

const QUpsertSettings = `--sql 3518dab8-355a-4a5d-83c6-d3c44040a3c5
insert into affiliate_settings(owner_id, target_country, target_language, own_brand, competitors, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::jsonb, now())
on conflict (owner_id) do update set
  target_country = excluded.target_country,
  target_language = excluded.target_language,
  own_brand = excluded.own_brand,
  competitors = excluded.competitors,
  updated_at = now();
`
