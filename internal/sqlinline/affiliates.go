package sqlinline

const QInsertAffiliate = `--sql 73cb082d-df41-44d8-8c16-8706b183588d
insert into discovered_affiliates(
  id,
  owner_id,
  job_id,
  link,
  domain,
  platform,
  title,
  snippet,
  source_type,
  source_value,
  affiliate_score,
  host_country,
  metadata,
  created_at
)
values ($1::uuid, $2::text, $3::uuid, $4::text, $5::text, $6::text, $7::text, $8::text, $9::text, $10::text, $11::int, $12::text, $13::jsonb, now())
on conflict (owner_id, link) do nothing;
`

const QListAffiliatesByOwner = `--sql 826ec799-35c4-4c39-b6b4-60e939c10dbf
select
  id::text,
  owner_id,
  job_id::text,
  link,
  domain,
  platform,
  title,
  snippet,
  source_type,
  source_value,
  affiliate_score,
  host_country,
  metadata,
  created_at
from discovered_affiliates
where owner_id = $1::text
order by created_at desc, id
limit $2::int offset $3::int;
`

const QSelectAffiliateIDForJob = `--sql 13f42e30-cb15-4a2c-a55f-8cc06e49d158
select id::text
from discovered_affiliates
where owner_id = $1::text
  and link = $2::text
  and job_id = $3::uuid;
`
